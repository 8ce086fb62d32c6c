package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/search"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

// Substituted results for papers that never reach the model.
const (
	noAbstractSummary   = "No abstract available."
	preEvalErrorSummary = "Pre-evaluation error."
)

var preEvalSchema = ai.MustCompileSchema("pre_evaluation.json", `{
	"type": "object",
	"properties": {
		"verdict": {"type": "string", "enum": ["supports", "contradicts", "neutral", "not_relevant"]},
		"summary": {"type": "string"},
		"snippet": {"type": "string"}
	},
	"required": ["verdict", "summary"],
	"additionalProperties": true
}`)

// PreEvaluator classifies paper abstracts against a statement.
type PreEvaluator interface {
	PreEvaluate(ctx context.Context, statement string, paper dto.Paper) (dto.PreEvaluation, error)
	PreEvaluateAll(ctx context.Context, statement string, papers []dto.Paper) []dto.PreEvaluation
}

type preEvaluator struct {
	extractor   ai.Extractor
	concurrency int
	logger      zerolog.Logger
}

// NewPreEvaluator builds a pre-evaluator with the given concurrency ceiling.
func NewPreEvaluator(extractor ai.Extractor, concurrency int, logger zerolog.Logger) PreEvaluator {
	if concurrency <= 0 {
		concurrency = 5
	}

	return &preEvaluator{
		extractor:   extractor,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "pre_evaluator").Logger(),
	}
}

// PreEvaluate classifies a single abstract. Papers without a usable abstract
// never reach the model and come back neutral.
func (p *preEvaluator) PreEvaluate(ctx context.Context, statement string, paper dto.Paper) (dto.PreEvaluation, error) {
	if !hasUsableAbstract(paper) {
		return dto.PreEvaluation{Verdict: models.PreEvalNeutral, Summary: noAbstractSummary}, nil
	}

	abstract := *paper.Summary

	var result dto.PreEvaluation
	err := p.extractor.Extract(ctx, ai.ExtractionRequest{
		Task: "pre_evaluation",
		SystemPrompt: "You classify whether an academic abstract supports or contradicts a statement. " +
			"Mark supports or contradicts ONLY when the abstract clearly and explicitly takes a position relative to the statement. " +
			"Mark neutral when the abstract discusses the same topic without taking a position. " +
			"Mark not_relevant when the abstract does not discuss the statement's topic at all. " +
			"The snippet must be a verbatim substring of the abstract, never a paraphrase; leave it empty if no clear snippet exists. " +
			"Respond with a JSON object containing verdict, summary and snippet.",
		Prompt: fmt.Sprintf("Statement: %s\n\nPaper title: %s\n\nAbstract:\n%s\n\nReturn JSON.", statement, paper.Title, abstract),
		Schema: preEvalSchema,
	}, &result)
	if err != nil {
		return dto.PreEvaluation{}, err
	}

	// The snippet contract is verbatim-or-empty; drop paraphrases the model
	// slipped through.
	if result.Snippet != "" && !strings.Contains(abstract, result.Snippet) {
		result.Snippet = ""
	}

	return result, nil
}

// PreEvaluateAll evaluates every paper with a fixed concurrency ceiling.
// Workers claim indices from a shared cursor and write into a pre-sized
// result slice, so results[i] always corresponds to papers[i] no matter which
// evaluation finishes first. A single failed evaluation is substituted, never
// propagated.
func (p *preEvaluator) PreEvaluateAll(ctx context.Context, statement string, papers []dto.Paper) []dto.PreEvaluation {
	results := make([]dto.PreEvaluation, len(papers))
	if len(papers) == 0 {
		return results
	}

	workers := p.concurrency
	if workers > len(papers) {
		workers = len(papers)
	}

	var (
		mu     sync.Mutex
		cursor int
		wg     sync.WaitGroup
	)

	next := func() int {
		mu.Lock()
		defer mu.Unlock()
		if cursor >= len(papers) {
			return -1
		}
		index := cursor
		cursor++
		return index
	}

	wg.Add(workers)
	for worker := 0; worker < workers; worker++ {
		go func() {
			defer wg.Done()
			for {
				index := next()
				if index < 0 {
					return
				}

				result, err := p.PreEvaluate(ctx, statement, papers[index])
				if err != nil {
					p.logger.Warn().Err(err).Str("paper", papers[index].ExternalID).Msg("pre-evaluation failed, substituting neutral")
					result = dto.PreEvaluation{Verdict: models.PreEvalNeutral, Summary: preEvalErrorSummary}
				}

				results[index] = result
			}
		}()
	}
	wg.Wait()

	return results
}

func hasUsableAbstract(paper dto.Paper) bool {
	return paper.Summary != nil && strings.TrimSpace(*paper.Summary) != "" && *paper.Summary != search.NoAbstract
}
