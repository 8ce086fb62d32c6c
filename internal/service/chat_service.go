package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

// ErrNoChatContext is returned when neither a shareable id nor inline session
// data accompanies a chat request.
var ErrNoChatContext = errors.New("chat request carries no session context")

const chatHistoryLimit = 20

// ChatService streams answers to follow-up questions grounded in a completed
// fact-check session.
type ChatService interface {
	Stream(ctx context.Context, req dto.ChatRequest, write func(delta string) error) error
}

type chatService struct {
	sessions SessionService
	streamer ai.ChatStreamer
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewChatService wires the chat service with its session source and streamer.
func NewChatService(sessions SessionService, streamer ai.ChatStreamer, validate *validator.Validate, logger zerolog.Logger) ChatService {
	return &chatService{
		sessions: sessions,
		streamer: streamer,
		validate: validate,
		logger:   logger.With().Str("component", "chat_service").Logger(),
	}
}

func (s *chatService) Stream(ctx context.Context, req dto.ChatRequest, write func(delta string) error) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	session, err := s.resolveContext(ctx, req)
	if err != nil {
		return err
	}

	messages := trimHistory(req.Messages)
	turns := make([]ai.ChatMessage, 0, len(messages))
	for _, message := range messages {
		turns = append(turns, ai.ChatMessage{Role: message.Role, Content: message.Content})
	}

	s.logger.Info().
		Str("shareable_id", session.ShareableID).
		Int("messages", len(turns)).
		Msg("streaming grounded chat")

	return s.streamer.StreamChat(ctx, groundedSystemPrompt(session), turns, write)
}

func (s *chatService) resolveContext(ctx context.Context, req dto.ChatRequest) (dto.SessionResponse, error) {
	if req.ShareableID != "" {
		return s.sessions.Get(ctx, req.ShareableID)
	}
	if req.DirectData != nil {
		return *req.DirectData, nil
	}
	return dto.SessionResponse{}, ErrNoChatContext
}

// trimHistory keeps only the most recent conversation turns so long chats stay
// within the model context window.
func trimHistory(messages []dto.ChatMessage) []dto.ChatMessage {
	if len(messages) <= chatHistoryLimit {
		return messages
	}
	return messages[len(messages)-chatHistoryLimit:]
}

func groundedSystemPrompt(session dto.SessionResponse) string {
	var b strings.Builder
	b.WriteString("You are a research assistant answering follow-up questions about a completed fact-check. ")
	b.WriteString("Ground every answer in the evidence below. When the evidence does not cover a question, say so plainly instead of speculating.\n\n")

	fmt.Fprintf(&b, "Statement under review: %s\n", session.Statement)
	if len(session.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(session.Keywords, ", "))
	}

	if verdict := session.FinalVerdict; verdict != nil {
		fmt.Fprintf(&b, "\nFinal verdict: %s (confidence %d/100)\n", verdict.FinalVerdict, verdict.ConfidenceScore)
		if verdict.Summary != "" {
			fmt.Fprintf(&b, "Verdict summary: %s\n", verdict.Summary)
		}
		fmt.Fprintf(&b, "Evidence counts: %d supporting, %d contradicting, %d neutral\n",
			verdict.SupportingEvidenceCount, verdict.ContradictingEvidenceCount, verdict.NeutralEvidenceCount)
	} else {
		b.WriteString("\nNo aggregated verdict was produced for this session.\n")
	}

	if len(session.Papers) > 0 {
		b.WriteString("\nEvidence papers:\n")
		for i, paper := range session.Papers {
			fmt.Fprintf(&b, "%d. %s", i+1, paper.Title)
			if len(paper.Authors) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(paper.Authors, ", "))
			}
			b.WriteString("\n")
			if paper.PreEvaluation != nil {
				fmt.Fprintf(&b, "   Stance: %s. %s\n", paper.PreEvaluation.Verdict, paper.PreEvaluation.Summary)
			}
			if paper.Analysis != nil && paper.Analysis.Analysis != nil {
				analysis := paper.Analysis.Analysis
				fmt.Fprintf(&b, "   Deep analysis (%s): %s, confidence %d. %s\n",
					paper.Analysis.AnalysisMethod, analysis.SupportLevel, analysis.Confidence, analysis.Summary)
				if len(analysis.KeyFindings) > 0 {
					fmt.Fprintf(&b, "   Key findings: %s\n", strings.Join(analysis.KeyFindings, "; "))
				}
			}
		}
	}

	return b.String()
}
