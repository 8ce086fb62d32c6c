package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

// ErrNoUsableEvidence indicates no paper carried a pre-evaluation verdict and
// summary, so no verdict can be aggregated.
var ErrNoUsableEvidence = errors.New("no usable evidence: no papers with pre-evaluation results")

var finalVerdictSchema = ai.MustCompileSchema("final_verdict.json", `{
	"type": "object",
	"properties": {
		"final_verdict": {"type": "string", "enum": ["true", "mostly_true", "mixed_evidence", "mostly_false", "false", "insufficient_evidence"]},
		"confidence_score": {"type": "integer", "minimum": 0, "maximum": 100},
		"summary": {"type": "string"},
		"reasoning": {"type": "string"},
		"supporting_evidence_count": {"type": "integer", "minimum": 0},
		"contradicting_evidence_count": {"type": "integer", "minimum": 0},
		"neutral_evidence_count": {"type": "integer", "minimum": 0},
		"key_findings": {"type": "array", "items": {"type": "string"}},
		"limitations": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["final_verdict", "confidence_score", "summary", "reasoning"],
	"additionalProperties": true
}`)

// VerdictAggregator synthesizes one final verdict over pre-evaluated papers.
type VerdictAggregator interface {
	Aggregate(ctx context.Context, statement string, papers []dto.Paper) (models.FinalVerdict, error)
}

type verdictAggregator struct {
	extractor ai.Extractor
	logger    zerolog.Logger
}

// NewVerdictAggregator builds an aggregator on top of the structured extractor.
func NewVerdictAggregator(extractor ai.Extractor, logger zerolog.Logger) VerdictAggregator {
	return &verdictAggregator{
		extractor: extractor,
		logger:    logger.With().Str("component", "verdict_aggregator").Logger(),
	}
}

// Aggregate filters to papers with a usable pre-evaluation, asks the model
// for a verdict, then overwrites the model's evidence counts with the counts
// computed from the filtered set so they can never drift from the papers.
func (a *verdictAggregator) Aggregate(ctx context.Context, statement string, papers []dto.Paper) (models.FinalVerdict, error) {
	usable := make([]dto.Paper, 0, len(papers))
	for _, paper := range papers {
		if paper.PreEvaluation != nil && paper.PreEvaluation.Verdict != "" && paper.PreEvaluation.Summary != "" {
			usable = append(usable, paper)
		}
	}

	if len(usable) == 0 {
		return models.FinalVerdict{}, ErrNoUsableEvidence
	}

	supporting, contradicting, neutral := evidenceCounts(usable)

	var verdict models.FinalVerdict
	err := a.extractor.Extract(ctx, ai.ExtractionRequest{
		Task:         "final_verdict",
		SystemPrompt: aggregatorSystemPrompt(),
		Prompt:       a.buildPrompt(statement, usable, supporting, contradicting, neutral),
		Schema:       finalVerdictSchema,
	}, &verdict)
	if err != nil {
		return models.FinalVerdict{}, err
	}

	// Counts are recomputed deterministically; the model's own numbers are
	// advisory only.
	verdict.SupportingEvidenceCount = supporting
	verdict.ContradictingEvidenceCount = contradicting
	verdict.NeutralEvidenceCount = neutral

	if verdict.KeyFindings == nil {
		verdict.KeyFindings = []string{}
	}
	if verdict.Limitations == nil {
		verdict.Limitations = []string{}
	}

	a.logger.Info().
		Str("verdict", verdict.FinalVerdict).
		Int("confidence", verdict.ConfidenceScore).
		Int("papers", len(usable)).
		Msg("verdict aggregated")

	return verdict, nil
}

// evidenceCounts tallies the pre-evaluation verdicts of the usable papers.
// not_relevant papers count as neutral: they reached the aggregator with a
// usable summary, so they are part of the evidence pool but lean neither way.
func evidenceCounts(papers []dto.Paper) (supporting, contradicting, neutral int) {
	for _, paper := range papers {
		switch paper.PreEvaluation.Verdict {
		case models.PreEvalSupports:
			supporting++
		case models.PreEvalContradicts:
			contradicting++
		default:
			neutral++
		}
	}
	return supporting, contradicting, neutral
}

func aggregatorSystemPrompt() string {
	return "You are an evidence aggregator for academic fact-checking. Respond with a JSON object containing final_verdict " +
		"(one of: true, mostly_true, mixed_evidence, mostly_false, false, insufficient_evidence), confidence_score " +
		"(integer 0-100), summary, reasoning, supporting_evidence_count, contradicting_evidence_count, " +
		"neutral_evidence_count, key_findings and limitations. " +
		"Weigh the evidence balance together with source quality: highly cited papers and reputable journals count " +
		"for more. Confidence bands: 90-100 very high (strong consistent evidence), 70-89 high, 50-69 moderate, " +
		"30-49 low, 0-29 very low (weak or conflicting evidence). " +
		"Use insufficient_evidence when papers discuss the topic without taking positions."
}

func (a *verdictAggregator) buildPrompt(statement string, papers []dto.Paper, supporting, contradicting, neutral int) string {
	builder := strings.Builder{}
	builder.WriteString("Statement: ")
	builder.WriteString(statement)
	builder.WriteString("\n\nEvidence balance: ")
	builder.WriteString(fmt.Sprintf("%d supporting, %d contradicting, %d neutral out of %d papers.\n\nPapers:\n", supporting, contradicting, neutral, len(papers)))

	for i, paper := range papers {
		builder.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, paper.Title))
		if len(paper.Authors) > 0 {
			builder.WriteString("   Authors: ")
			builder.WriteString(strings.Join(paper.Authors, ", "))
			builder.WriteString("\n")
		}
		if paper.Published != nil {
			builder.WriteString("   Published: ")
			builder.WriteString(*paper.Published)
			builder.WriteString("\n")
		}
		if paper.CitedByCount != nil {
			builder.WriteString(fmt.Sprintf("   Citations: %d\n", *paper.CitedByCount))
		}
		if paper.JournalName != nil {
			builder.WriteString("   Journal: ")
			builder.WriteString(*paper.JournalName)
			builder.WriteString("\n")
		}
		builder.WriteString("   Stance: ")
		builder.WriteString(paper.PreEvaluation.Verdict)
		builder.WriteString("\n   Summary: ")
		builder.WriteString(paper.PreEvaluation.Summary)
		builder.WriteString("\n")
		if paper.PreEvaluation.Snippet != "" {
			builder.WriteString("   Quote: \"")
			builder.WriteString(paper.PreEvaluation.Snippet)
			builder.WriteString("\"\n")
		}
	}

	builder.WriteString("\nReturn JSON.")
	return builder.String()
}
