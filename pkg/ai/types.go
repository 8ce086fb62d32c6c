package ai

import (
	"context"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Document carries optional source material attached to an extraction prompt,
// typically the text of a fetched PDF.
type Document struct {
	Name string
	Text string
}

// ExtractionRequest describes a single structured-output model call.
type ExtractionRequest struct {
	// Task is a short label used for metrics and tracing ("query_builder",
	// "pre_evaluation", ...).
	Task         string
	SystemPrompt string
	Prompt       string
	// Schema validates the raw model output before it is decoded into the
	// caller's destination. Required.
	Schema    *jsonschema.Schema
	Document  *Document
	MaxTokens int
}

// Extractor describes an AI model capable of producing schema-conforming
// structured output. Implementations do not retry; callers own retry policy.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest, dest any) error
}

// ChatMessage is one turn of a grounded follow-up conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStreamer streams free-text assistant output, invoking write for each
// delta as it arrives.
type ChatStreamer interface {
	StreamChat(ctx context.Context, system string, messages []ChatMessage, write func(delta string) error) error
}

// ExtractionError reports a failed extraction, distinguishing transport
// failures from schema violations so callers can decide on fallbacks.
type ExtractionError struct {
	Task   string
	Reason string // "call", "schema" or "decode"
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s failed (%s): %v", e.Task, e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// MustCompileSchema compiles an inline JSON Schema document and panics on
// error. Schemas are package-level constants, so a failure is a programming
// bug caught at startup.
func MustCompileSchema(name, document string) *jsonschema.Schema {
	schema, err := jsonschema.CompileString(name, document)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}

	return schema
}
