package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/fetch"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/repository"
	"github.com/paperproof/paperproof-api/pkg/ai"
	"github.com/paperproof/paperproof-api/pkg/retry"
)

func setupDocumentTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PaperDocument{}))
	return db
}

func newTestReader(t *testing.T, extractor ai.Extractor, pdfs PDFSource) *readerService {
	t.Helper()
	return &readerService{
		repo:      repository.NewDocumentRepository(setupDocumentTestDB(t)),
		extractor: extractor,
		pdfs:      pdfs,
		extractText: func(data []byte) (string, int, error) {
			return string(data), 12, nil
		},
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		maxAttempts: 3,
		backoff:     retry.Backoff{Initial: time.Millisecond, Max: time.Millisecond},
		logger:      testLogger(),
	}
}

func fullStructure() documentStructure {
	return documentStructure{
		Title:   "Attention Is All You Need",
		Authors: []string{"Vaswani"},
		Sections: []models.DocumentSection{
			{Title: "Introduction", Level: 1, StartPage: 1, EndPage: 3},
			{Title: "Model Architecture", Level: 1, StartPage: 4, EndPage: 12},
		},
		Figures:  []models.DocumentFigure{{Label: "Figure 1", Caption: "The Transformer", Page: 3}},
		Acronyms: []models.DocumentAcronym{{Short: "BLEU", Long: "Bilingual Evaluation Understudy"}},
		References: []models.DocumentReference{
			{Index: 1, Text: "Bahdanau et al. 2014"},
		},
	}
}

func TestCreateDocumentExtractsAndPersists(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		require.Equal(t, "document_structure", req.Task)
		require.NotNil(t, req.Document)
		return fullStructure(), nil
	}}
	pdfs := &fakePDFSource{directData: []byte("pdf text")}
	reader := newTestReader(t, extractor, pdfs)

	created, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/attention.pdf"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ShareableID)
	require.Equal(t, "Attention Is All You Need", created.Title)
	require.Equal(t, 12, created.PageCount)
	require.Len(t, created.Sections, 2)
	require.Len(t, created.Figures, 1)
	require.Len(t, created.Acronyms, 1)

	loaded, err := reader.GetDocument(context.Background(), created.ShareableID)
	require.NoError(t, err)
	require.Equal(t, created.Sections, loaded.Sections)
	require.Equal(t, "BLEU", loaded.Acronyms[0].Short)
}

func TestCreateDocumentReturnsExistingForSameURL(t *testing.T) {
	calls := 0
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		calls++
		return fullStructure(), nil
	}}
	reader := newTestReader(t, extractor, &fakePDFSource{directData: []byte("pdf text")})

	first, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/a.pdf"})
	require.NoError(t, err)

	second, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/a.pdf"})
	require.NoError(t, err)
	require.Equal(t, first.ShareableID, second.ShareableID)
	require.Equal(t, 1, calls)
}

func TestCreateDocumentRetriesIncompleteOutline(t *testing.T) {
	attempt := 0
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		attempt++
		if attempt == 1 {
			// First pass stops halfway through the document.
			partial := fullStructure()
			partial.Sections = partial.Sections[:1]
			return partial, nil
		}
		return fullStructure(), nil
	}}
	reader := newTestReader(t, extractor, &fakePDFSource{directData: []byte("pdf text")})

	created, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/a.pdf"})
	require.NoError(t, err)
	require.Equal(t, 2, attempt)
	require.Len(t, created.Sections, 2)
}

func TestCreateDocumentKeepsLastIncompleteOutline(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		partial := fullStructure()
		partial.Sections = partial.Sections[:1]
		return partial, nil
	}}
	reader := newTestReader(t, extractor, &fakePDFSource{directData: []byte("pdf text")})

	created, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/a.pdf"})
	require.NoError(t, err)
	require.Len(t, created.Sections, 1)
}

func TestCreateDocumentBrowserRetryOnDenial(t *testing.T) {
	extractor := &fakeExtractor{handle: func(ctx context.Context, req ai.ExtractionRequest) (any, error) {
		return fullStructure(), nil
	}}
	pdfs := &fakePDFSource{directErr: fetch.ErrAccessDenied, browserData: []byte("pdf text")}
	reader := newTestReader(t, extractor, pdfs)

	_, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/a.pdf"})
	require.NoError(t, err)
	require.Equal(t, 1, pdfs.browserCalls)
}

func TestCreateDocumentFetchFailure(t *testing.T) {
	reader := newTestReader(t, &fakeExtractor{}, &fakePDFSource{directErr: errors.New("timeout")})

	_, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "https://example.org/a.pdf"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch pdf")
}

func TestCreateDocumentRejectsInvalidURL(t *testing.T) {
	reader := newTestReader(t, &fakeExtractor{}, &fakePDFSource{})

	_, err := reader.CreateDocument(context.Background(), dto.DocumentCreateRequest{PDFURL: "not a url"})
	require.Error(t, err)
}

func TestGetDocumentUnknownID(t *testing.T) {
	reader := newTestReader(t, &fakeExtractor{}, &fakePDFSource{})

	_, err := reader.GetDocument(context.Background(), "missing")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
