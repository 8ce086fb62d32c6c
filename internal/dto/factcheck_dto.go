package dto

import (
	"encoding/json"
	"time"

	"github.com/paperproof/paperproof-api/internal/models"
)

// SearchRequest starts a fact-check run for a statement.
type SearchRequest struct {
	Statement string `json:"statement" validate:"required,min=3"`
}

// PreEvaluation is the cheap abstract-only stance classification of one paper.
type PreEvaluation struct {
	Verdict string `json:"verdict"`
	Summary string `json:"summary"`
	Snippet string `json:"snippet,omitempty"`
}

// Paper is the candidate-paper value object flowing through the pipeline and
// over the wire. Pointer fields stay null when the source had no value.
type Paper struct {
	ExternalID     string             `json:"id"`
	Title          string             `json:"title"`
	Authors        []string           `json:"authors"`
	Summary        *string            `json:"summary"`
	Published      *string            `json:"published"`
	DOI            *string            `json:"doi"`
	JournalName    *string            `json:"journal_name"`
	Publisher      *string            `json:"publisher"`
	RelevanceScore *float64           `json:"relevance_score"`
	CitedByCount   *int               `json:"cited_by_count"`
	Links          []models.PaperLink `json:"links"`
	PDFURL         *string            `json:"pdf_url,omitempty"`
	PreEvaluation  *PreEvaluation     `json:"pre_evaluation,omitempty"`
	Analysis       *AnalysisOutcome   `json:"analysis,omitempty"`
}

// SearchResponse is the outcome of query building, search and pre-evaluation.
type SearchResponse struct {
	Statement      string   `json:"statement"`
	OriginalQuery  string   `json:"original_query"`
	OptimizedQuery string   `json:"optimized_query"`
	Keywords       []string `json:"keywords"`
	SearchTerms    []string `json:"search_terms"`
	ResearchAreas  []string `json:"research_areas"`
	TotalResults   int      `json:"total_results"`
	Papers         []Paper  `json:"papers"`
}

// VerdictRequest asks for an aggregated verdict over pre-evaluated papers.
type VerdictRequest struct {
	Statement string  `json:"statement" validate:"required,min=3"`
	Papers    []Paper `json:"papers" validate:"required,min=1"`
}

// AnalyzeRequest asks for a deep analysis of a single paper.
type AnalyzeRequest struct {
	PDFURL     *string  `json:"pdf_url"`
	Statement  string   `json:"statement" validate:"required,min=3"`
	PaperID    string   `json:"paper_id"`
	PaperTitle string   `json:"paper_title"`
	Abstract   *string  `json:"abstract"`
	Authors    []string `json:"authors"`
	Journal    *string  `json:"journal"`
}

// PaperAnalysisResult is the structured deep-analysis payload. Confidence is
// an integer percentage, 0-100.
type PaperAnalysisResult struct {
	SupportLevel     string                   `json:"support_level"`
	Confidence       int                      `json:"confidence"`
	Summary          string                   `json:"summary"`
	RelevantSections []models.RelevantSection `json:"relevant_sections"`
	KeyFindings      []string                 `json:"key_findings"`
	Limitations      []string                 `json:"limitations"`
}

// AnalysisOutcome wraps the result of one deep analysis. Analysis is nil and
// Error populated when every fallback was exhausted.
type AnalysisOutcome struct {
	PDFURL         *string              `json:"pdf_url"`
	AnalysisMethod string               `json:"analysis_method"`
	Analysis       *PaperAnalysisResult `json:"analysis"`
	Error          *string              `json:"error,omitempty"`
}

// AnalyzeResponse is the HTTP shape of one deep analysis.
type AnalyzeResponse struct {
	PaperID        string               `json:"paper_id"`
	PDFURL         *string              `json:"pdf_url"`
	Statement      string               `json:"statement"`
	AnalysisMethod string               `json:"analysis_method"`
	Analysis       *PaperAnalysisResult `json:"analysis"`
	Error          *string              `json:"error,omitempty"`
}

// AnalyzeBatchRequest runs the deep-analysis side branch over many papers.
type AnalyzeBatchRequest struct {
	Statement   string  `json:"statement" validate:"required,min=3"`
	ShareableID string  `json:"shareable_id"`
	Papers      []Paper `json:"papers" validate:"required,min=1"`
}

// AnalyzeBatchResponse returns the per-paper outcomes keyed by external id.
type AnalyzeBatchResponse struct {
	Statement string                     `json:"statement"`
	Analyses  map[string]AnalysisOutcome `json:"analyses"`
}

// SessionCreateRequest persists a completed fact-check run.
type SessionCreateRequest struct {
	Statement       string                     `json:"statement" validate:"required"`
	Keywords        []string                   `json:"keywords"`
	FinalVerdict    *models.FinalVerdict       `json:"final_verdict"`
	Papers          []Paper                    `json:"papers"`
	AnalysisResults map[string]AnalysisOutcome `json:"analysis_results"`
}

// SessionCreateResponse returns the identifiers of a stored session. Only the
// shareable id is meant to leave the backend.
type SessionCreateResponse struct {
	SessionID   uint   `json:"session_id"`
	ShareableID string `json:"shareable_id"`
}

// SessionResponse is the full session with nested papers and analyses.
type SessionResponse struct {
	ShareableID  string               `json:"shareable_id"`
	Statement    string               `json:"statement"`
	Keywords     []string             `json:"keywords"`
	FinalVerdict *models.FinalVerdict `json:"final_verdict"`
	CreatedAt    time.Time            `json:"created_at"`
	Papers       []Paper              `json:"papers"`
}

// RunResponse is the outcome of a full pipeline run. Verdict and Session stay
// null for the degenerate zero-paper outcome, and Verdict alone stays null
// when aggregation failed after a successful search.
type RunResponse struct {
	Search  SearchResponse         `json:"search"`
	Verdict *models.FinalVerdict   `json:"verdict"`
	Session *SessionCreateResponse `json:"session"`
}

// ChatMessage is one turn of the follow-up conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest answers follow-up questions grounded in a stored session, or in
// inline session data when the session was never persisted.
type ChatRequest struct {
	Messages    []ChatMessage    `json:"messages" validate:"required,min=1,dive"`
	ShareableID string           `json:"shareable_id"`
	DirectData  *SessionResponse `json:"direct_data"`
}

// NewSessionResponse converts a persisted session into its transfer shape.
func NewSessionResponse(session models.FactCheckSession) SessionResponse {
	response := SessionResponse{
		ShareableID: session.ShareableID,
		Statement:   session.Statement,
		Keywords:    session.Keywords,
		CreatedAt:   session.CreatedAt,
		Papers:      make([]Paper, 0, len(session.Papers)),
	}

	if len(session.FinalVerdict) > 0 {
		var verdict models.FinalVerdict
		if err := json.Unmarshal(session.FinalVerdict, &verdict); err == nil {
			response.FinalVerdict = &verdict
		}
	}

	for _, paper := range session.Papers {
		response.Papers = append(response.Papers, newPaperFromModel(paper))
	}

	return response
}

func newPaperFromModel(paper models.CandidatePaper) Paper {
	result := Paper{
		ExternalID:     paper.ExternalID,
		Title:          paper.Title,
		Authors:        paper.Authors,
		Summary:        paper.Summary,
		Published:      paper.Published,
		DOI:            paper.DOI,
		JournalName:    paper.JournalName,
		Publisher:      paper.Publisher,
		RelevanceScore: paper.RelevanceScore,
		CitedByCount:   paper.CitedByCount,
	}

	if result.Authors == nil {
		result.Authors = []string{}
	}

	if len(paper.Links) > 0 {
		var links []models.PaperLink
		if err := json.Unmarshal(paper.Links, &links); err == nil {
			result.Links = links
		}
	}
	if result.Links == nil {
		result.Links = []models.PaperLink{}
	}

	if paper.Analysis != nil {
		result.Analysis = newOutcomeFromModel(*paper.Analysis)
	}

	if paper.PreEvalVerdict != nil {
		evaluation := PreEvaluation{Verdict: *paper.PreEvalVerdict}
		if paper.PreEvalSummary != nil {
			evaluation.Summary = *paper.PreEvalSummary
		}
		if paper.PreEvalSnippet != nil {
			evaluation.Snippet = *paper.PreEvalSnippet
		}
		result.PreEvaluation = &evaluation
	}

	return result
}

func newOutcomeFromModel(analysis models.PaperAnalysis) *AnalysisOutcome {
	outcome := AnalysisOutcome{
		PDFURL:         analysis.PDFURL,
		AnalysisMethod: analysis.AnalysisMethod,
		Error:          analysis.Error,
	}

	if analysis.Error == nil {
		confidence := 0
		if analysis.Confidence != nil {
			confidence = *analysis.Confidence
		}
		result := PaperAnalysisResult{
			SupportLevel: analysis.SupportLevel,
			Confidence:   confidence,
			Summary:      analysis.Summary,
			KeyFindings:  analysis.KeyFindings,
			Limitations:  analysis.Limitations,
		}
		if len(analysis.RelevantSections) > 0 {
			var sections []models.RelevantSection
			if err := json.Unmarshal(analysis.RelevantSections, &sections); err == nil {
				result.RelevantSections = sections
			}
		}
		outcome.Analysis = &result
	}

	return &outcome
}
