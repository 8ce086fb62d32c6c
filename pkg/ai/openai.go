package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paperproof",
		Subsystem: "ai",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of structured extraction requests",
	}, []string{"model", "task"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperproof",
		Subsystem: "ai",
		Name:      "extraction_failures_total",
		Help:      "Number of failed structured extraction requests",
	}, []string{"model", "task", "reason"})
)

// OpenAIConfig defines configuration options for the OpenAI extractor.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// OpenAIExtractor implements Extractor and ChatStreamer against the OpenAI
// chat completion API using JSON response mode.
type OpenAIExtractor struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIExtractor builds a new extractor using the provided configuration.
func NewOpenAIExtractor(cfg OpenAIConfig) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	tracer := otel.Tracer("github.com/paperproof/paperproof-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIExtractor{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Extract sends the request to OpenAI, validates the response against the
// request schema and decodes it into dest.
func (e *OpenAIExtractor) Extract(parent context.Context, req ExtractionRequest, dest any) error {
	ctx, span := e.tracer.Start(parent, "openai.extract", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.String("task", req.Task),
	))
	defer span.End()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = e.cfg.MaxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
	}
	if req.Document != nil && req.Document.Text != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: documentMessage(*req.Document),
		})
	}

	request := openai.ChatCompletionRequest{
		Model:          e.cfg.Model,
		MaxTokens:      maxTokens,
		Temperature:    e.cfg.Temperature,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(e.cfg.Model, req.Task).Observe(time.Since(start).Seconds())
	if err != nil {
		return e.fail(span, req.Task, "call", err)
	}

	if len(resp.Choices) == 0 {
		return e.fail(span, req.Task, "call", fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return e.fail(span, req.Task, "decode", fmt.Errorf("parse model output: %w", err))
	}

	if req.Schema != nil {
		if err := req.Schema.Validate(raw); err != nil {
			return e.fail(span, req.Task, "schema", err)
		}
	}

	if err := json.Unmarshal([]byte(content), dest); err != nil {
		return e.fail(span, req.Task, "decode", err)
	}

	return nil
}

// StreamChat streams a plain-text completion, invoking write per delta.
func (e *OpenAIExtractor) StreamChat(ctx context.Context, system string, messages []ChatMessage, write func(delta string) error) error {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, message := range messages {
		role := message.Role
		if role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{Role: role, Content: message.Content})
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages:    chatMessages,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("openai chat stream: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai chat stream recv: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			if err := write(delta); err != nil {
				return err
			}
		}
	}
}

func (e *OpenAIExtractor) fail(span trace.Span, task, reason string, err error) error {
	aiFailures.WithLabelValues(e.cfg.Model, task, reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Warn().Err(err).Str("task", task).Str("reason", reason).Msg("extraction failed")

	return &ExtractionError{Task: task, Reason: reason, Err: err}
}

func documentMessage(doc Document) string {
	builder := strings.Builder{}
	builder.WriteString("# Source Document")
	if doc.Name != "" {
		builder.WriteString(": ")
		builder.WriteString(doc.Name)
	}
	builder.WriteString("\n\n")
	builder.WriteString(doc.Text)
	return builder.String()
}
