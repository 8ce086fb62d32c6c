package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/observability"
	"github.com/paperproof/paperproof-api/internal/search"
)

// Stage identifies a pipeline stage for failure reporting.
type Stage string

// Pipeline stages in execution order.
const (
	StageBuildingQuery Stage = "building_query"
	StageSearching     Stage = "searching"
	StagePreEvaluating Stage = "pre_evaluating"
	StageAggregating   Stage = "aggregating"
	StagePersisting    Stage = "persisting"
)

// StageError reports which pipeline stage failed for which statement, so the
// caller can decide whether to restart the whole pipeline. There is no
// automatic whole-pipeline retry.
type StageError struct {
	Stage     Stage
	Statement string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FactCheckConfig carries the orchestrator's tuning knobs.
type FactCheckConfig struct {
	PerPage         int
	StatementMaxLen int
	DeepBatchSize   int
	DeepPacingDelay time.Duration
}

// FactCheckService orchestrates the fact-check pipeline end to end.
type FactCheckService interface {
	Search(ctx context.Context, req dto.SearchRequest) (dto.SearchResponse, error)
	Verdict(ctx context.Context, req dto.VerdictRequest) (models.FinalVerdict, error)
	Analyze(ctx context.Context, req dto.AnalyzeRequest) (dto.AnalyzeResponse, error)
	AnalyzeBatch(ctx context.Context, req dto.AnalyzeBatchRequest) (dto.AnalyzeBatchResponse, error)
	Run(ctx context.Context, req dto.SearchRequest) (dto.RunResponse, error)
}

type factCheckService struct {
	queries     QueryBuilder
	primary     search.PaperSearcher
	secondary   search.PaperSearcher
	preEval     PreEvaluator
	aggregator  VerdictAggregator
	sessions    SessionService
	analyzer    DeepAnalyzer
	validator   *validator.Validate
	cfg         FactCheckConfig
	logger      zerolog.Logger
	pacingSleep func(ctx context.Context, d time.Duration) error
}

// NewFactCheckService wires the pipeline components together. secondary may
// be nil; it is consulted once when the primary source yields nothing through
// the whole query ladder.
func NewFactCheckService(
	queries QueryBuilder,
	primary search.PaperSearcher,
	secondary search.PaperSearcher,
	preEval PreEvaluator,
	aggregator VerdictAggregator,
	sessions SessionService,
	analyzer DeepAnalyzer,
	validate *validator.Validate,
	cfg FactCheckConfig,
	logger zerolog.Logger,
) FactCheckService {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20
	}
	if cfg.StatementMaxLen <= 0 {
		cfg.StatementMaxLen = 5000
	}
	if cfg.DeepBatchSize <= 0 {
		cfg.DeepBatchSize = 10
	}

	return &factCheckService{
		queries:    queries,
		primary:    primary,
		secondary:  secondary,
		preEval:    preEval,
		aggregator: aggregator,
		sessions:   sessions,
		analyzer:   analyzer,
		validator:  validate,
		cfg:        cfg,
		logger:     logger.With().Str("component", "factcheck_service").Logger(),
		pacingSleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// Search runs query building, the search ladder and pre-evaluation. Zero
// papers is a valid outcome, not an error.
func (s *factCheckService) Search(ctx context.Context, req dto.SearchRequest) (dto.SearchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SearchResponse{}, err
	}

	statement := truncateRunes(strings.TrimSpace(req.Statement), s.cfg.StatementMaxLen)

	stageTimer := observability.StageTimer(string(StageBuildingQuery))
	plan, err := s.queries.BuildQuery(ctx, statement)
	stageTimer()
	if err != nil {
		return dto.SearchResponse{}, &StageError{Stage: StageBuildingQuery, Statement: statement, Err: err}
	}

	stageTimer = observability.StageTimer(string(StageSearching))
	result, err := s.runSearchLadder(ctx, plan)
	stageTimer()
	if err != nil {
		return dto.SearchResponse{}, &StageError{Stage: StageSearching, Statement: statement, Err: err}
	}

	papers := result.Papers
	if len(papers) > s.cfg.PerPage {
		papers = papers[:s.cfg.PerPage]
	}

	// The stage as a whole cannot fail: individual evaluation errors are
	// substituted inside the batch.
	stageTimer = observability.StageTimer(string(StagePreEvaluating))
	evaluations := s.preEval.PreEvaluateAll(ctx, statement, papers)
	stageTimer()
	for i := range papers {
		evaluation := evaluations[i]
		papers[i].PreEvaluation = &evaluation
	}

	return dto.SearchResponse{
		Statement:      statement,
		OriginalQuery:  plan.OriginalQuery,
		OptimizedQuery: plan.OptimizedQuery,
		Keywords:       plan.Keywords,
		SearchTerms:    plan.SearchTerms,
		ResearchAreas:  plan.ResearchAreas,
		TotalResults:   result.TotalCount,
		Papers:         papers,
	}, nil
}

// runSearchLadder walks the optimized query and its fallbacks. A fallback is
// attempted only after a zero-result response; transport errors propagate
// immediately without retries.
func (s *factCheckService) runSearchLadder(ctx context.Context, plan QueryPlan) (search.Result, error) {
	queries := append([]string{plan.OptimizedQuery}, plan.FallbackQueries()...)

	var result search.Result
	for _, query := range queries {
		if strings.TrimSpace(query) == "" {
			continue
		}

		attempt, err := s.primary.Search(ctx, query, search.Options{PerPage: s.cfg.PerPage, SortBy: "relevance_score:desc"})
		if err != nil {
			return search.Result{}, err
		}

		if len(attempt.Papers) > 0 {
			return attempt, nil
		}

		result = attempt
		s.logger.Debug().Str("query", query).Msg("query yielded zero results, trying fallback")
	}

	if s.secondary != nil {
		attempt, err := s.secondary.Search(ctx, strings.Join(plan.Keywords, " "), search.Options{PerPage: s.cfg.PerPage})
		if err != nil {
			// The secondary source is best-effort; its failure does not turn
			// an empty primary result into a pipeline failure.
			s.logger.Warn().Err(err).Msg("secondary search source failed")
			return result, nil
		}
		if len(attempt.Papers) > 0 {
			return attempt, nil
		}
	}

	return result, nil
}

// Verdict aggregates pre-evaluated papers into one final verdict.
func (s *factCheckService) Verdict(ctx context.Context, req dto.VerdictRequest) (models.FinalVerdict, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.FinalVerdict{}, err
	}

	statement := truncateRunes(strings.TrimSpace(req.Statement), s.cfg.StatementMaxLen)

	stageTimer := observability.StageTimer(string(StageAggregating))
	defer stageTimer()

	return s.aggregator.Aggregate(ctx, statement, req.Papers)
}

// Analyze deep-analyzes one paper.
func (s *factCheckService) Analyze(ctx context.Context, req dto.AnalyzeRequest) (dto.AnalyzeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AnalyzeResponse{}, err
	}

	statement := truncateRunes(strings.TrimSpace(req.Statement), s.cfg.StatementMaxLen)

	outcome, err := s.analyzer.Analyze(ctx, statement, req)
	if err != nil {
		return dto.AnalyzeResponse{}, err
	}

	paperID := req.PaperID
	if paperID == "" {
		paperID = req.PaperTitle
	}

	return dto.AnalyzeResponse{
		PaperID:        paperID,
		PDFURL:         req.PDFURL,
		Statement:      statement,
		AnalysisMethod: outcome.AnalysisMethod,
		Analysis:       outcome.Analysis,
		Error:          outcome.Error,
	}, nil
}

// AnalyzeBatch runs the deep-analysis side branch: papers are processed
// sequentially in batches with a pacing delay between papers, and the session
// is fully re-saved after every batch so the shared link reflects progress.
func (s *factCheckService) AnalyzeBatch(ctx context.Context, req dto.AnalyzeBatchRequest) (dto.AnalyzeBatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AnalyzeBatchResponse{}, err
	}

	statement := truncateRunes(strings.TrimSpace(req.Statement), s.cfg.StatementMaxLen)
	analyses := make(map[string]dto.AnalysisOutcome, len(req.Papers))

	for start := 0; start < len(req.Papers); start += s.cfg.DeepBatchSize {
		end := start + s.cfg.DeepBatchSize
		if end > len(req.Papers) {
			end = len(req.Papers)
		}

		for i := start; i < end; i++ {
			if i > start {
				if err := s.pacingSleep(ctx, s.cfg.DeepPacingDelay); err != nil {
					return dto.AnalyzeBatchResponse{}, err
				}
			}

			paper := req.Papers[i]
			outcome, err := s.analyzer.Analyze(ctx, statement, analyzeRequestFor(statement, paper))
			if err != nil {
				message := err.Error()
				outcome = dto.AnalysisOutcome{Error: &message}
			}
			analyses[paper.ExternalID] = outcome
		}

		if req.ShareableID != "" {
			if err := s.sessions.AttachAnalyses(ctx, req.ShareableID, analyses); err != nil {
				s.logger.Warn().Err(err).Str("shareable_id", req.ShareableID).Msg("failed to re-save session after batch")
			}
		}
	}

	return dto.AnalyzeBatchResponse{Statement: statement, Analyses: analyses}, nil
}

// Run executes the whole pipeline for one statement. A zero-paper search is a
// valid degenerate outcome with neither verdict nor session; a failed
// aggregation still persists the session with a null verdict.
func (s *factCheckService) Run(ctx context.Context, req dto.SearchRequest) (dto.RunResponse, error) {
	searchResponse, err := s.Search(ctx, req)
	if err != nil {
		return dto.RunResponse{}, err
	}

	response := dto.RunResponse{Search: searchResponse}

	if len(searchResponse.Papers) == 0 {
		s.logger.Info().Str("statement", searchResponse.Statement).Msg("no evidence found, skipping aggregation and persistence")
		return response, nil
	}

	verdict, err := s.aggregator.Aggregate(ctx, searchResponse.Statement, searchResponse.Papers)
	if err != nil {
		s.logger.Warn().Err(err).Msg("aggregation failed, persisting session without verdict")
	} else {
		response.Verdict = &verdict
	}

	stageTimer := observability.StageTimer(string(StagePersisting))
	created, err := s.sessions.Create(ctx, dto.SessionCreateRequest{
		Statement:    searchResponse.Statement,
		Keywords:     searchResponse.Keywords,
		FinalVerdict: response.Verdict,
		Papers:       searchResponse.Papers,
	})
	stageTimer()
	if err != nil {
		return dto.RunResponse{}, &StageError{Stage: StagePersisting, Statement: searchResponse.Statement, Err: err}
	}

	response.Session = &created

	return response, nil
}

func analyzeRequestFor(statement string, paper dto.Paper) dto.AnalyzeRequest {
	return dto.AnalyzeRequest{
		PDFURL:     paper.PDFURL,
		Statement:  statement,
		PaperID:    paper.ExternalID,
		PaperTitle: paper.Title,
		Abstract:   paper.Summary,
		Authors:    paper.Authors,
		Journal:    paper.JournalName,
	}
}
