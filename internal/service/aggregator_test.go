package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

func evaluatedPaper(id, verdict string) dto.Paper {
	return dto.Paper{
		ExternalID:    id,
		Title:         "Paper " + id,
		PreEvaluation: &dto.PreEvaluation{Verdict: verdict, Summary: "summary " + id},
	}
}

func TestAggregateNoUsableEvidence(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		t.Fatal("extractor must not be called without usable evidence")
		return nil, nil
	}}
	aggregator := NewVerdictAggregator(extractor, testLogger())

	papers := []dto.Paper{
		{ExternalID: "a", Title: "no pre-evaluation"},
		{ExternalID: "b", PreEvaluation: &dto.PreEvaluation{Verdict: models.PreEvalSupports}},
	}

	_, err := aggregator.Aggregate(context.Background(), "claim", papers)
	require.ErrorIs(t, err, ErrNoUsableEvidence)
}

func TestAggregateOverridesModelCounts(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return models.FinalVerdict{
			FinalVerdict:               models.VerdictMostlyTrue,
			ConfidenceScore:            72,
			Summary:                    "evidence leans supportive",
			Reasoning:                  "two of three papers support the claim",
			SupportingEvidenceCount:    99,
			ContradictingEvidenceCount: 99,
			NeutralEvidenceCount:       99,
		}, nil
	}}
	aggregator := NewVerdictAggregator(extractor, testLogger())

	papers := []dto.Paper{
		evaluatedPaper("a", models.PreEvalSupports),
		evaluatedPaper("b", models.PreEvalSupports),
		evaluatedPaper("c", models.PreEvalContradicts),
		evaluatedPaper("d", models.PreEvalNotRelevant),
	}

	verdict, err := aggregator.Aggregate(context.Background(), "claim", papers)
	require.NoError(t, err)
	require.Equal(t, models.VerdictMostlyTrue, verdict.FinalVerdict)
	require.Equal(t, 72, verdict.ConfidenceScore)
	require.Equal(t, 2, verdict.SupportingEvidenceCount)
	require.Equal(t, 1, verdict.ContradictingEvidenceCount)
	require.Equal(t, 1, verdict.NeutralEvidenceCount)
	require.NotNil(t, verdict.KeyFindings)
	require.NotNil(t, verdict.Limitations)
}

func TestAggregatePromptCarriesEvidence(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return models.FinalVerdict{FinalVerdict: models.VerdictMixedEvidence, ConfidenceScore: 50, Summary: "s", Reasoning: "r"}, nil
	}}
	aggregator := NewVerdictAggregator(extractor, testLogger())

	snippet := "measured a strong effect"
	papers := []dto.Paper{
		{
			ExternalID:    "a",
			Title:         "Effects of X on Y",
			Authors:       []string{"Doe", "Roe"},
			CitedByCount:  intPtr(240),
			JournalName:   strPtr("Nature"),
			PreEvaluation: &dto.PreEvaluation{Verdict: models.PreEvalSupports, Summary: "found the effect", Snippet: snippet},
		},
	}

	_, err := aggregator.Aggregate(context.Background(), "claim", papers)
	require.NoError(t, err)

	call := requireTask(t, extractor.calls, "final_verdict")
	require.True(t, strings.Contains(call.Prompt, "Effects of X on Y"))
	require.True(t, strings.Contains(call.Prompt, "240"))
	require.True(t, strings.Contains(call.Prompt, "Nature"))
	require.True(t, strings.Contains(call.Prompt, snippet))
	require.True(t, strings.Contains(call.Prompt, "1 supporting, 0 contradicting, 0 neutral"))
}

func TestAggregatePropagatesExtractionError(t *testing.T) {
	boom := errors.New("model unavailable")
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return nil, boom
	}}
	aggregator := NewVerdictAggregator(extractor, testLogger())

	_, err := aggregator.Aggregate(context.Background(), "claim", []dto.Paper{evaluatedPaper("a", models.PreEvalSupports)})
	require.ErrorIs(t, err, boom)
}
