package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/fetch"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/search"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

// ErrNoAnalysisSource indicates a paper with neither a PDF URL nor an
// abstract; callers must reject such requests before analysis starts.
var ErrNoAnalysisSource = errors.New("paper has neither pdf url nor abstract")

var deepAnalysisSchema = ai.MustCompileSchema("deep_analysis.json", `{
	"type": "object",
	"properties": {
		"support_level": {"type": "string", "enum": ["strongly_supports", "supports", "neutral", "contradicts", "strongly_contradicts", "insufficient_data"]},
		"confidence": {"type": "integer", "minimum": 0, "maximum": 100},
		"summary": {"type": "string"},
		"relevant_sections": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"section_title": {"type": "string"},
					"text_snippet": {"type": "string"},
					"page_number": {"type": "integer"},
					"reasoning": {"type": "string"}
				},
				"required": ["text_snippet", "reasoning"]
			}
		},
		"key_findings": {"type": "array", "items": {"type": "string"}},
		"limitations": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["support_level", "confidence", "summary"],
	"additionalProperties": true
}`)

// PDFSource abstracts the PDF download paths so tests can fake denial and
// success independently.
type PDFSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchBrowserLike(ctx context.Context, url string) ([]byte, error)
}

// DeepAnalyzer produces a document-grounded verdict for one paper.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, statement string, paper dto.AnalyzeRequest) (dto.AnalysisOutcome, error)
}

type deepAnalyzer struct {
	extractor   ai.Extractor
	pdfs        PDFSource
	extractText func(data []byte) (string, int, error)
	logger      zerolog.Logger
}

// NewDeepAnalyzer builds a deep analyzer over the extractor and PDF source.
func NewDeepAnalyzer(extractor ai.Extractor, pdfs PDFSource, logger zerolog.Logger) DeepAnalyzer {
	return &deepAnalyzer{
		extractor:   extractor,
		pdfs:        pdfs,
		extractText: fetch.ExtractText,
		logger:      logger.With().Str("component", "deep_analyzer").Logger(),
	}
}

// Analyze walks the fallback chain: direct PDF fetch, browser-header fetch on
// access denial, abstract fallback, terminal error result. The returned error
// is non-nil only for the precondition violation (no PDF URL and no
// abstract); every other failure is folded into the outcome's Error field.
func (a *deepAnalyzer) Analyze(ctx context.Context, statement string, paper dto.AnalyzeRequest) (dto.AnalysisOutcome, error) {
	hasAbstract := paper.Abstract != nil && strings.TrimSpace(*paper.Abstract) != "" && *paper.Abstract != search.NoAbstract

	if paper.PDFURL == nil || strings.TrimSpace(*paper.PDFURL) == "" {
		if !hasAbstract {
			return dto.AnalysisOutcome{}, ErrNoAnalysisSource
		}
		return a.analyzeAbstract(ctx, statement, paper, models.MethodAbstractOnly), nil
	}

	pdfURL := *paper.PDFURL

	text, err := a.fetchText(ctx, pdfURL, false)
	if err == nil {
		outcome := a.analyzeDocument(ctx, statement, paper, text, models.MethodPDFDirectURL)
		if outcome.Error == nil {
			return outcome, nil
		}
		err = errors.New(*outcome.Error)
	} else if errors.Is(err, fetch.ErrAccessDenied) {
		a.logger.Debug().Str("url", pdfURL).Msg("direct fetch denied, retrying with browser headers")

		text, manualErr := a.fetchText(ctx, pdfURL, true)
		if manualErr == nil {
			outcome := a.analyzeDocument(ctx, statement, paper, text, models.MethodPDFManualFetch)
			if outcome.Error == nil {
				return outcome, nil
			}
			err = errors.New(*outcome.Error)
		} else {
			err = manualErr
		}
	}

	if hasAbstract {
		a.logger.Debug().Str("url", pdfURL).Err(err).Msg("pdf paths exhausted, falling back to abstract")
		return a.analyzeAbstract(ctx, statement, paper, models.MethodAbstractFallback), nil
	}

	message := fmt.Sprintf("all analysis paths failed: %v", err)
	return dto.AnalysisOutcome{PDFURL: paper.PDFURL, Error: &message}, nil
}

func (a *deepAnalyzer) fetchText(ctx context.Context, url string, browserLike bool) (string, error) {
	var (
		data []byte
		err  error
	)
	if browserLike {
		data, err = a.pdfs.FetchBrowserLike(ctx, url)
	} else {
		data, err = a.pdfs.Fetch(ctx, url)
	}
	if err != nil {
		return "", err
	}

	text, _, err := a.extractText(data)
	if err != nil {
		return "", err
	}

	return text, nil
}

func (a *deepAnalyzer) analyzeDocument(ctx context.Context, statement string, paper dto.AnalyzeRequest, text, method string) dto.AnalysisOutcome {
	result, err := a.extract(ctx, statement, paper, &ai.Document{Name: paper.PaperTitle, Text: text}, false)
	if err != nil {
		message := err.Error()
		return dto.AnalysisOutcome{PDFURL: paper.PDFURL, AnalysisMethod: method, Error: &message}
	}

	return dto.AnalysisOutcome{PDFURL: paper.PDFURL, AnalysisMethod: method, Analysis: result}
}

func (a *deepAnalyzer) analyzeAbstract(ctx context.Context, statement string, paper dto.AnalyzeRequest, method string) dto.AnalysisOutcome {
	result, err := a.extract(ctx, statement, paper, nil, true)
	if err != nil {
		message := err.Error()
		return dto.AnalysisOutcome{PDFURL: paper.PDFURL, AnalysisMethod: method, Error: &message}
	}

	return dto.AnalysisOutcome{PDFURL: paper.PDFURL, AnalysisMethod: method, Analysis: result}
}

func (a *deepAnalyzer) extract(ctx context.Context, statement string, paper dto.AnalyzeRequest, document *ai.Document, abstractOnly bool) (*dto.PaperAnalysisResult, error) {
	prompt := strings.Builder{}
	prompt.WriteString("Statement to evaluate: ")
	prompt.WriteString(statement)
	prompt.WriteString("\n\nPaper: ")
	prompt.WriteString(paper.PaperTitle)
	if len(paper.Authors) > 0 {
		prompt.WriteString("\nAuthors: ")
		prompt.WriteString(strings.Join(paper.Authors, ", "))
	}
	if paper.Journal != nil {
		prompt.WriteString("\nJournal: ")
		prompt.WriteString(*paper.Journal)
	}
	if abstractOnly && paper.Abstract != nil {
		prompt.WriteString("\n\nAbstract:\n")
		prompt.WriteString(*paper.Abstract)
	}
	prompt.WriteString("\n\nReturn JSON.")

	system := "You analyze an academic paper against a statement. Respond with a JSON object containing support_level, " +
		"confidence (integer 0-100), summary, relevant_sections (verbatim text_snippet plus reasoning for each, with " +
		"section_title and page_number when known), key_findings and limitations."
	if abstractOnly {
		system += " Only the abstract is available; be conservative with confidence."
	}

	var result dto.PaperAnalysisResult
	err := a.extractor.Extract(ctx, ai.ExtractionRequest{
		Task:         "deep_analysis",
		SystemPrompt: system,
		Prompt:       prompt.String(),
		Schema:       deepAnalysisSchema,
		Document:     document,
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.RelevantSections == nil {
		result.RelevantSections = []models.RelevantSection{}
	}
	if result.KeyFindings == nil {
		result.KeyFindings = []string{}
	}
	if result.Limitations == nil {
		result.Limitations = []string{}
	}

	return &result, nil
}
