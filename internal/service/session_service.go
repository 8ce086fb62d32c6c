package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/repository"
)

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

const sessionCachePrefix = "paperproof:session:"

// SessionService persists fact-check sessions and serves them by shareable id.
type SessionService interface {
	Create(ctx context.Context, req dto.SessionCreateRequest) (dto.SessionCreateResponse, error)
	Get(ctx context.Context, shareableID string) (dto.SessionResponse, error)
	AttachAnalyses(ctx context.Context, shareableID string, results map[string]dto.AnalysisOutcome) error
}

type sessionService struct {
	repo            repository.SessionRepository
	redis           *redis.Client
	cacheTTL        time.Duration
	validator       *validator.Validate
	statementMaxLen int
	logger          zerolog.Logger
	newShareableID  func() string
}

// NewSessionService builds a session service. The redis client is optional;
// without it every read goes to the database.
func NewSessionService(repo repository.SessionRepository, redisClient *redis.Client, cacheTTL time.Duration, validate *validator.Validate, statementMaxLen int, logger zerolog.Logger) SessionService {
	if statementMaxLen <= 0 {
		statementMaxLen = 5000
	}

	return &sessionService{
		repo:            repo,
		redis:           redisClient,
		cacheTTL:        cacheTTL,
		validator:       validate,
		statementMaxLen: statementMaxLen,
		logger:          logger.With().Str("component", "session_service").Logger(),
		newShareableID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Create persists a completed fact-check run as a write-once aggregate. Each
// paper is sanitized against upstream schema drift before storage; analyses
// are attached by external id and omitted entirely when absent.
func (s *sessionService) Create(ctx context.Context, req dto.SessionCreateRequest) (dto.SessionCreateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionCreateResponse{}, err
	}

	session := models.FactCheckSession{
		ShareableID: s.newShareableID(),
		Statement:   truncateRunes(strings.TrimSpace(req.Statement), s.statementMaxLen),
		Keywords:    datatypes.NewJSONSlice(sanitizeStrings(req.Keywords)),
	}

	if req.FinalVerdict != nil {
		raw, err := json.Marshal(req.FinalVerdict)
		if err != nil {
			return dto.SessionCreateResponse{}, fmt.Errorf("encode final verdict: %w", err)
		}
		session.FinalVerdict = raw
	}

	session.Papers = make([]models.CandidatePaper, 0, len(req.Papers))
	for i, paper := range req.Papers {
		model := sanitizePaper(paper, i)
		if outcome, ok := req.AnalysisResults[model.ExternalID]; ok {
			model.Analysis = buildAnalysisModel(outcome)
		}
		session.Papers = append(session.Papers, model)
	}

	if err := s.repo.Create(ctx, &session); err != nil {
		return dto.SessionCreateResponse{}, err
	}

	s.logger.Info().Str("shareable_id", session.ShareableID).Int("papers", len(session.Papers)).Msg("session created")

	return dto.SessionCreateResponse{SessionID: session.ID, ShareableID: session.ShareableID}, nil
}

// Get returns a session by its shareable id, read through the cache.
func (s *sessionService) Get(ctx context.Context, shareableID string) (dto.SessionResponse, error) {
	shareableID = strings.TrimSpace(shareableID)
	if shareableID == "" {
		return dto.SessionResponse{}, ErrSessionNotFound
	}

	if cached, ok := s.cachedSession(ctx, shareableID); ok {
		return cached, nil
	}

	session, err := s.repo.GetByShareableID(ctx, shareableID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrSessionNotFound
		}
		return dto.SessionResponse{}, err
	}

	response := dto.NewSessionResponse(session)
	s.cacheSession(ctx, shareableID, response)

	return response, nil
}

// AttachAnalyses re-saves the session's whole paper sub-tree with the given
// deep-analysis outcomes merged in, so the shared link reflects the latest
// state after each batch.
func (s *sessionService) AttachAnalyses(ctx context.Context, shareableID string, results map[string]dto.AnalysisOutcome) error {
	session, err := s.repo.GetByShareableID(ctx, shareableID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	for i := range session.Papers {
		if outcome, ok := results[session.Papers[i].ExternalID]; ok {
			session.Papers[i].Analysis = buildAnalysisModel(outcome)
		}
	}

	if err := s.repo.ReplacePapers(ctx, &session); err != nil {
		return err
	}

	s.invalidateSession(ctx, shareableID)

	return nil
}

func (s *sessionService) cachedSession(ctx context.Context, shareableID string) (dto.SessionResponse, bool) {
	if s.redis == nil {
		return dto.SessionResponse{}, false
	}

	payload, err := s.redis.Get(ctx, sessionCachePrefix+shareableID).Bytes()
	if err != nil {
		return dto.SessionResponse{}, false
	}

	var response dto.SessionResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return dto.SessionResponse{}, false
	}

	return response, true
}

func (s *sessionService) cacheSession(ctx context.Context, shareableID string, response dto.SessionResponse) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, sessionCachePrefix+shareableID, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache session")
	}
}

func (s *sessionService) invalidateSession(ctx context.Context, shareableID string) {
	if s.redis == nil {
		return
	}

	if err := s.redis.Del(ctx, sessionCachePrefix+shareableID).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate session cache")
	}
}

// sanitizePaper coerces each incoming field to its expected shape or a safe
// default, defending persistence against drift in upstream extraction output.
func sanitizePaper(paper dto.Paper, index int) models.CandidatePaper {
	model := models.CandidatePaper{
		ExternalID: strings.TrimSpace(paper.ExternalID),
		Title:      strings.TrimSpace(paper.Title),
		Authors:    datatypes.NewJSONSlice(sanitizeStrings(paper.Authors)),
	}

	if model.ExternalID == "" {
		model.ExternalID = fmt.Sprintf("paper:unknown:%d", index)
	}

	model.Summary = sanitizeText(paper.Summary)
	model.Published = sanitizeText(paper.Published)
	model.DOI = sanitizeText(paper.DOI)
	model.JournalName = sanitizeText(paper.JournalName)
	model.Publisher = sanitizeText(paper.Publisher)
	model.RelevanceScore = sanitizeFloat(paper.RelevanceScore)

	if paper.CitedByCount != nil && *paper.CitedByCount >= 0 {
		count := *paper.CitedByCount
		model.CitedByCount = &count
	}

	if len(paper.Links) > 0 {
		if raw, err := json.Marshal(paper.Links); err == nil {
			model.Links = raw
		}
	}

	if paper.PreEvaluation != nil && paper.PreEvaluation.Verdict != "" {
		verdict := paper.PreEvaluation.Verdict
		model.PreEvalVerdict = &verdict
		model.PreEvalSummary = sanitizeText(&paper.PreEvaluation.Summary)
		model.PreEvalSnippet = sanitizeText(&paper.PreEvaluation.Snippet)
	}

	return model
}

func buildAnalysisModel(outcome dto.AnalysisOutcome) *models.PaperAnalysis {
	analysis := models.PaperAnalysis{
		PDFURL:         sanitizeText(outcome.PDFURL),
		AnalysisMethod: outcome.AnalysisMethod,
		Error:          sanitizeText(outcome.Error),
	}

	if outcome.Analysis != nil {
		confidence := clampInt(outcome.Analysis.Confidence, 0, 100)
		analysis.SupportLevel = outcome.Analysis.SupportLevel
		analysis.Confidence = &confidence
		analysis.Summary = outcome.Analysis.Summary
		analysis.KeyFindings = datatypes.NewJSONSlice(sanitizeStrings(outcome.Analysis.KeyFindings))
		analysis.Limitations = datatypes.NewJSONSlice(sanitizeStrings(outcome.Analysis.Limitations))
		if len(outcome.Analysis.RelevantSections) > 0 {
			if raw, err := json.Marshal(outcome.Analysis.RelevantSections); err == nil {
				analysis.RelevantSections = raw
			}
		}
	}

	return &analysis
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

func sanitizeStrings(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func sanitizeText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sanitizeFloat(value *float64) *float64 {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return nil
	}
	result := *value
	return &result
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
