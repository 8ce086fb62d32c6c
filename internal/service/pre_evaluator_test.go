package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/search"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

func paperWithAbstract(id, abstract string) dto.Paper {
	return dto.Paper{ExternalID: id, Title: "Paper " + id, Summary: &abstract}
}

func TestPreEvaluateSkipsMissingAbstract(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		t.Fatal("extractor must not be called for papers without an abstract")
		return nil, nil
	}}
	evaluator := NewPreEvaluator(extractor, 2, testLogger())

	for _, paper := range []dto.Paper{
		{ExternalID: "a"},
		paperWithAbstract("b", "   "),
		paperWithAbstract("c", search.NoAbstract),
	} {
		result, err := evaluator.PreEvaluate(context.Background(), "claim", paper)
		require.NoError(t, err)
		require.Equal(t, models.PreEvalNeutral, result.Verdict)
		require.Equal(t, "No abstract available.", result.Summary)
	}
}

func TestPreEvaluateDropsParaphrasedSnippet(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return dto.PreEvaluation{Verdict: models.PreEvalSupports, Summary: "supports it", Snippet: "a paraphrase not in the text"}, nil
	}}
	evaluator := NewPreEvaluator(extractor, 2, testLogger())

	result, err := evaluator.PreEvaluate(context.Background(), "claim", paperWithAbstract("a", "the measured effect was positive"))
	require.NoError(t, err)
	require.Equal(t, models.PreEvalSupports, result.Verdict)
	require.Empty(t, result.Snippet)
}

func TestPreEvaluateKeepsVerbatimSnippet(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return dto.PreEvaluation{Verdict: models.PreEvalSupports, Summary: "supports it", Snippet: "effect was positive"}, nil
	}}
	evaluator := NewPreEvaluator(extractor, 2, testLogger())

	result, err := evaluator.PreEvaluate(context.Background(), "claim", paperWithAbstract("a", "the measured effect was positive"))
	require.NoError(t, err)
	require.Equal(t, "effect was positive", result.Snippet)
}

func TestPreEvaluateAllPreservesOrder(t *testing.T) {
	// Earlier papers finish later, so ordered output proves index-addressed
	// writes rather than completion-order appends.
	delays := map[string]time.Duration{"p0": 30 * time.Millisecond, "p1": 15 * time.Millisecond, "p2": 0}

	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		for key, delay := range delays {
			if strings.Contains(req.Prompt, key) {
				time.Sleep(delay)
				return dto.PreEvaluation{Verdict: models.PreEvalNeutral, Summary: "summary for " + key}, nil
			}
		}
		return nil, errors.New("unknown paper")
	}}
	evaluator := NewPreEvaluator(extractor, 3, testLogger())

	papers := []dto.Paper{
		paperWithAbstract("x", "abstract of p0"),
		paperWithAbstract("y", "abstract of p1"),
		paperWithAbstract("z", "abstract of p2"),
	}

	results := evaluator.PreEvaluateAll(context.Background(), "claim", papers)
	require.Len(t, results, 3)
	require.Equal(t, "summary for p0", results[0].Summary)
	require.Equal(t, "summary for p1", results[1].Summary)
	require.Equal(t, "summary for p2", results[2].Summary)
}

func TestPreEvaluateAllSubstitutesFailures(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		if strings.Contains(req.Prompt, "broken") {
			return nil, errors.New("model unavailable")
		}
		return dto.PreEvaluation{Verdict: models.PreEvalSupports, Summary: "fine"}, nil
	}}
	evaluator := NewPreEvaluator(extractor, 2, testLogger())

	papers := []dto.Paper{
		paperWithAbstract("a", "healthy abstract"),
		paperWithAbstract("b", "broken abstract"),
		paperWithAbstract("c", "healthy abstract"),
	}

	results := evaluator.PreEvaluateAll(context.Background(), "claim", papers)
	require.Equal(t, "fine", results[0].Summary)
	require.Equal(t, models.PreEvalNeutral, results[1].Verdict)
	require.Equal(t, "Pre-evaluation error.", results[1].Summary)
	require.Equal(t, "fine", results[2].Summary)
}

func TestPreEvaluateAllHonoursConcurrencyCeiling(t *testing.T) {
	var active, peak int32

	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		current := atomic.AddInt32(&active, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return dto.PreEvaluation{Verdict: models.PreEvalNeutral, Summary: "ok"}, nil
	}}
	evaluator := NewPreEvaluator(extractor, 2, testLogger())

	papers := make([]dto.Paper, 8)
	for i := range papers {
		papers[i] = paperWithAbstract(fmt.Sprintf("p%d", i), fmt.Sprintf("abstract %d", i))
	}

	results := evaluator.PreEvaluateAll(context.Background(), "claim", papers)
	require.Len(t, results, 8)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPreEvaluateAllShortCircuitsSentinelInBatch(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return dto.PreEvaluation{Verdict: models.PreEvalSupports, Summary: "evaluated"}, nil
	}}
	evaluator := NewPreEvaluator(extractor, 5, testLogger())

	papers := make([]dto.Paper, 10)
	for i := range papers {
		papers[i] = paperWithAbstract(fmt.Sprintf("p%d", i), fmt.Sprintf("abstract %d", i))
	}
	papers[4] = paperWithAbstract("p4", search.NoAbstract)

	results := evaluator.PreEvaluateAll(context.Background(), "claim", papers)
	require.Len(t, results, 10)
	require.Equal(t, models.PreEvalNeutral, results[4].Verdict)
	require.Equal(t, "No abstract available.", results[4].Summary)
	for i, result := range results {
		if i == 4 {
			continue
		}
		require.Equal(t, "evaluated", result.Summary)
	}
	require.Len(t, extractor.calls, 9)
}

func TestPreEvaluateAllEmptyInput(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		t.Fatal("no calls expected")
		return nil, nil
	}}
	evaluator := NewPreEvaluator(extractor, 4, testLogger())

	results := evaluator.PreEvaluateAll(context.Background(), "claim", nil)
	require.Empty(t, results)
}
