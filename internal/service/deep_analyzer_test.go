package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/fetch"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

// fakePDFSource scripts the two download paths independently.
type fakePDFSource struct {
	directData  []byte
	directErr   error
	browserData []byte
	browserErr  error

	directCalls  int
	browserCalls int
}

func (f *fakePDFSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.directCalls++
	return f.directData, f.directErr
}

func (f *fakePDFSource) FetchBrowserLike(ctx context.Context, url string) ([]byte, error) {
	f.browserCalls++
	return f.browserData, f.browserErr
}

func newTestAnalyzer(extractor ai.Extractor, pdfs PDFSource) *deepAnalyzer {
	return &deepAnalyzer{
		extractor: extractor,
		pdfs:      pdfs,
		extractText: func(data []byte) (string, int, error) {
			if len(data) == 0 {
				return "", 0, errors.New("empty document")
			}
			return string(data), 1, nil
		},
		logger: testLogger(),
	}
}

func analysisResult() dto.PaperAnalysisResult {
	return dto.PaperAnalysisResult{
		SupportLevel: models.SupportSupports,
		Confidence:   80,
		Summary:      "the paper supports the claim",
	}
}

func TestAnalyzeDirectPDF(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		require.NotNil(t, req.Document)
		require.Equal(t, "full paper text", req.Document.Text)
		return analysisResult(), nil
	}}
	pdfs := &fakePDFSource{directData: []byte("full paper text")}
	analyzer := newTestAnalyzer(extractor, pdfs)

	outcome, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		PDFURL:     strPtr("https://example.org/paper.pdf"),
		Statement:  "claim",
		PaperTitle: "Paper",
	})
	require.NoError(t, err)
	require.Equal(t, models.MethodPDFDirectURL, outcome.AnalysisMethod)
	require.NotNil(t, outcome.Analysis)
	require.Nil(t, outcome.Error)
	require.Equal(t, 1, pdfs.directCalls)
	require.Zero(t, pdfs.browserCalls)
}

func TestAnalyzeBrowserRetryOnAccessDenied(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return analysisResult(), nil
	}}
	pdfs := &fakePDFSource{directErr: fetch.ErrAccessDenied, browserData: []byte("fetched with browser headers")}
	analyzer := newTestAnalyzer(extractor, pdfs)

	outcome, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		PDFURL:     strPtr("https://example.org/paper.pdf"),
		Statement:  "claim",
		PaperTitle: "Paper",
	})
	require.NoError(t, err)
	require.Equal(t, models.MethodPDFManualFetch, outcome.AnalysisMethod)
	require.NotNil(t, outcome.Analysis)
	require.Equal(t, 1, pdfs.directCalls)
	require.Equal(t, 1, pdfs.browserCalls)
}

func TestAnalyzeFallsBackToAbstract(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		require.Nil(t, req.Document)
		require.Contains(t, req.Prompt, "the abstract text")
		return analysisResult(), nil
	}}
	pdfs := &fakePDFSource{directErr: errors.New("connection reset")}
	analyzer := newTestAnalyzer(extractor, pdfs)

	outcome, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		PDFURL:     strPtr("https://example.org/paper.pdf"),
		Statement:  "claim",
		PaperTitle: "Paper",
		Abstract:   strPtr("the abstract text"),
	})
	require.NoError(t, err)
	require.Equal(t, models.MethodAbstractFallback, outcome.AnalysisMethod)
	require.NotNil(t, outcome.Analysis)
	// A plain transport error does not trigger the browser retry.
	require.Zero(t, pdfs.browserCalls)
}

func TestAnalyzeAbstractOnlyWithoutPDFURL(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return analysisResult(), nil
	}}
	pdfs := &fakePDFSource{}
	analyzer := newTestAnalyzer(extractor, pdfs)

	outcome, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		Statement:  "claim",
		PaperTitle: "Paper",
		Abstract:   strPtr("only the abstract"),
	})
	require.NoError(t, err)
	require.Equal(t, models.MethodAbstractOnly, outcome.AnalysisMethod)
	require.Zero(t, pdfs.directCalls)
}

func TestAnalyzeTerminalErrorOutcome(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		t.Fatal("no analysis source should reach the extractor")
		return nil, nil
	}}
	pdfs := &fakePDFSource{directErr: fetch.ErrAccessDenied, browserErr: fetch.ErrAccessDenied}
	analyzer := newTestAnalyzer(extractor, pdfs)

	outcome, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		PDFURL:     strPtr("https://example.org/paper.pdf"),
		Statement:  "claim",
		PaperTitle: "Paper",
	})
	require.NoError(t, err)
	require.Nil(t, outcome.Analysis)
	require.NotNil(t, outcome.Error)
	require.Contains(t, *outcome.Error, "all analysis paths failed")
}

func TestAnalyzeRejectsPaperWithoutAnySource(t *testing.T) {
	analyzer := newTestAnalyzer(&fakeExtractor{}, &fakePDFSource{})

	_, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		Statement:  "claim",
		PaperTitle: "Paper",
	})
	require.ErrorIs(t, err, ErrNoAnalysisSource)
}

func TestAnalyzeSentinelAbstractDoesNotCountAsSource(t *testing.T) {
	analyzer := newTestAnalyzer(&fakeExtractor{}, &fakePDFSource{})

	_, err := analyzer.Analyze(context.Background(), "claim", dto.AnalyzeRequest{
		Statement:  "claim",
		PaperTitle: "Paper",
		Abstract:   strPtr("No abstract available"),
	})
	require.ErrorIs(t, err, ErrNoAnalysisSource)
}
