package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/pkg/ai"
)

var conceptSchema = ai.MustCompileSchema("concepts.json", `{
	"type": "object",
	"properties": {
		"keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"search_terms": {"type": "array", "items": {"type": "string"}},
		"research_areas": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["keywords", "search_terms", "research_areas"],
	"additionalProperties": true
}`)

var booleanQuerySchema = ai.MustCompileSchema("boolean_query.json", `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 3}
	},
	"required": ["query"],
	"additionalProperties": true
}`)

// QueryPlan is the search strategy derived from a statement.
type QueryPlan struct {
	OriginalQuery  string
	OptimizedQuery string
	Keywords       []string
	SearchTerms    []string
	ResearchAreas  []string
}

// FallbackQueries returns the query ladder to walk when the optimized query
// yields zero results: top-5 keywords joined with OR, top-3 keywords joined
// with AND, then the original unoptimized query.
func (p QueryPlan) FallbackQueries() []string {
	var queries []string

	if len(p.Keywords) > 0 {
		top := p.Keywords
		if len(top) > 5 {
			top = top[:5]
		}
		queries = append(queries, strings.Join(quoteTerms(top), " OR "))
	}

	if len(p.Keywords) > 0 {
		top := p.Keywords
		if len(top) > 3 {
			top = top[:3]
		}
		queries = append(queries, strings.Join(quoteTerms(top), " AND "))
	}

	if p.OriginalQuery != "" && p.OriginalQuery != p.OptimizedQuery {
		queries = append(queries, p.OriginalQuery)
	}

	return queries
}

// QueryBuilder turns a free-text statement into an optimized academic search
// query.
type QueryBuilder interface {
	BuildQuery(ctx context.Context, statement string) (QueryPlan, error)
}

type queryBuilder struct {
	extractor ai.Extractor
	logger    zerolog.Logger
}

// NewQueryBuilder builds a query builder on top of the structured extractor.
func NewQueryBuilder(extractor ai.Extractor, logger zerolog.Logger) QueryBuilder {
	return &queryBuilder{
		extractor: extractor,
		logger:    logger.With().Str("component", "query_builder").Logger(),
	}
}

// BuildQuery derives concepts from the statement and then synthesizes a
// boolean query in a second call. The two calls are deliberate: a single call
// conflates concept extraction with boolean-syntax correctness and hurts
// recall.
func (b *queryBuilder) BuildQuery(ctx context.Context, statement string) (QueryPlan, error) {
	var concepts struct {
		Keywords      []string `json:"keywords"`
		SearchTerms   []string `json:"search_terms"`
		ResearchAreas []string `json:"research_areas"`
	}

	err := b.extractor.Extract(ctx, ai.ExtractionRequest{
		Task:         "query_concepts",
		SystemPrompt: "You extract academic search concepts from a claim. Respond with a JSON object containing keywords (specific noun phrases from the claim), search_terms (broader queryable terms) and research_areas (disciplines likely to study the claim).",
		Prompt:       fmt.Sprintf("Statement to fact-check:\n%s\n\nExtract at least 5 keywords. Return JSON.", statement),
		Schema:       conceptSchema,
	}, &concepts)
	if err != nil {
		return QueryPlan{}, err
	}

	plan := QueryPlan{
		Keywords:      trimAll(concepts.Keywords),
		SearchTerms:   trimAll(concepts.SearchTerms),
		ResearchAreas: trimAll(concepts.ResearchAreas),
	}

	plan.OriginalQuery = strings.Join(plan.SearchTerms, " ")
	if plan.OriginalQuery == "" {
		plan.OriginalQuery = strings.Join(plan.Keywords, " ")
	}

	var optimized struct {
		Query string `json:"query"`
	}

	err = b.extractor.Extract(ctx, ai.ExtractionRequest{
		Task: "query_optimize",
		SystemPrompt: "You write boolean search queries for academic databases. Respond with a JSON object containing a single field: query. " +
			"Prefer 2-3 concept groups joined by AND, each group an OR of synonyms in parentheses. " +
			"Use quoted exact phrases for technical terms. Cap each group at 6-8 OR terms.",
		Prompt: fmt.Sprintf("Keywords: %s\nSearch terms: %s\nResearch areas: %s\n\nSynthesize one optimized boolean query. Return JSON.",
			strings.Join(plan.Keywords, "; "), strings.Join(plan.SearchTerms, "; "), strings.Join(plan.ResearchAreas, "; ")),
		Schema: booleanQuerySchema,
	}, &optimized)
	if err != nil {
		return QueryPlan{}, err
	}

	plan.OptimizedQuery = strings.TrimSpace(optimized.Query)

	b.logger.Debug().
		Str("query", plan.OptimizedQuery).
		Int("keywords", len(plan.Keywords)).
		Msg("query plan built")

	return plan, nil
}

func quoteTerms(terms []string) []string {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if strings.Contains(term, " ") && !strings.HasPrefix(term, "\"") {
			quoted = append(quoted, fmt.Sprintf("%q", term))
			continue
		}
		quoted = append(quoted, term)
	}
	return quoted
}

func trimAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
