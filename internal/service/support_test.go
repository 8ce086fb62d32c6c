package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/paperproof/paperproof-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeExtractor dispatches by extraction task, mirroring how the pipeline
// multiplexes one extractor across stages. Responses are re-marshalled into
// the destination the same way the real extractor decodes model output.
type fakeExtractor struct {
	handle func(ctx context.Context, req ai.ExtractionRequest) (any, error)

	mu    sync.Mutex
	calls []ai.ExtractionRequest
}

func (f *fakeExtractor) Extract(ctx context.Context, req ai.ExtractionRequest, dest any) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	value, err := f.handle(ctx, req)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func requireTask(t *testing.T, calls []ai.ExtractionRequest, task string) ai.ExtractionRequest {
	t.Helper()
	for _, call := range calls {
		if call.Task == task {
			return call
		}
	}
	require.Failf(t, "missing extraction task", "no call with task %q", task)
	return ai.ExtractionRequest{}
}

func strPtr(value string) *string { return &value }

func intPtr(value int) *int { return &value }
