package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/fetch"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/repository"
	"github.com/paperproof/paperproof-api/pkg/ai"
	"github.com/paperproof/paperproof-api/pkg/retry"
)

// ErrDocumentNotFound is returned when no document matches the shareable id.
var ErrDocumentNotFound = errors.New("document not found")

var documentStructureSchema = ai.MustCompileSchema("document_structure.json", `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"authors": {"type": "array", "items": {"type": "string"}},
		"sections": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"level": {"type": "integer", "minimum": 1},
					"start_page": {"type": "integer", "minimum": 1},
					"end_page": {"type": "integer", "minimum": 1},
					"summary": {"type": "string"}
				},
				"required": ["title", "start_page", "end_page"]
			}
		},
		"figures": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"label": {"type": "string"},
					"caption": {"type": "string"},
					"page": {"type": "integer", "minimum": 1}
				},
				"required": ["label", "page"]
			}
		},
		"acronyms": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"short": {"type": "string"},
					"long": {"type": "string"}
				},
				"required": ["short", "long"]
			}
		},
		"references": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"index": {"type": "integer", "minimum": 1},
					"text": {"type": "string"},
					"doi": {"type": "string"},
					"year": {"type": "string"},
					"authors": {"type": "string"}
				},
				"required": ["text"]
			}
		}
	},
	"required": ["title", "sections"],
	"additionalProperties": true
}`)

type documentStructure struct {
	Title      string                     `json:"title"`
	Authors    []string                   `json:"authors"`
	Sections   []models.DocumentSection   `json:"sections"`
	Figures    []models.DocumentFigure    `json:"figures"`
	Acronyms   []models.DocumentAcronym   `json:"acronyms"`
	References []models.DocumentReference `json:"references"`
}

// ReaderService extracts and serves the structural outline of a paper for the
// paginated reading view.
type ReaderService interface {
	CreateDocument(ctx context.Context, req dto.DocumentCreateRequest) (dto.DocumentResponse, error)
	GetDocument(ctx context.Context, shareableID string) (dto.DocumentResponse, error)
}

type readerService struct {
	repo        repository.DocumentRepository
	extractor   ai.Extractor
	pdfs        PDFSource
	extractText func(data []byte) (string, int, error)
	validate    *validator.Validate
	maxAttempts int
	backoff     retry.Backoff
	logger      zerolog.Logger
}

// NewReaderService wires the read-mode pipeline.
func NewReaderService(repo repository.DocumentRepository, extractor ai.Extractor, pdfs PDFSource, validate *validator.Validate, logger zerolog.Logger) ReaderService {
	return &readerService{
		repo:        repo,
		extractor:   extractor,
		pdfs:        pdfs,
		extractText: fetch.ExtractText,
		validate:    validate,
		maxAttempts: 3,
		backoff:     retry.DefaultBackoff,
		logger:      logger.With().Str("component", "reader_service").Logger(),
	}
}

// CreateDocument downloads the PDF, extracts its structural outline and
// persists the result. A document already extracted for the same source URL
// is returned as-is instead of being re-processed.
func (s *readerService) CreateDocument(ctx context.Context, req dto.DocumentCreateRequest) (dto.DocumentResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.DocumentResponse{}, err
	}

	if existing, err := s.repo.GetBySourceURL(ctx, req.PDFURL); err == nil {
		s.logger.Debug().Str("url", req.PDFURL).Msg("document already extracted")
		return dto.NewDocumentResponse(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.DocumentResponse{}, fmt.Errorf("lookup document: %w", err)
	}

	text, pageCount, err := s.fetchDocument(ctx, req.PDFURL)
	if err != nil {
		return dto.DocumentResponse{}, err
	}

	structure, err := s.extractStructure(ctx, text, pageCount)
	if err != nil {
		return dto.DocumentResponse{}, err
	}

	document := models.PaperDocument{
		ShareableID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Title:       structure.Title,
		SourceURL:   req.PDFURL,
		Authors:     datatypes.NewJSONSlice(structure.Authors),
		PageCount:   pageCount,
		Sections:    mustJSON(structure.Sections),
		Figures:     mustJSON(structure.Figures),
		Acronyms:    mustJSON(structure.Acronyms),
		References:  mustJSON(structure.References),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, &document); err != nil {
		return dto.DocumentResponse{}, fmt.Errorf("persist document: %w", err)
	}

	s.logger.Info().
		Str("shareable_id", document.ShareableID).
		Int("pages", pageCount).
		Int("sections", len(structure.Sections)).
		Msg("document extracted")

	return dto.NewDocumentResponse(document), nil
}

// GetDocument returns a previously extracted document by its shareable id.
func (s *readerService) GetDocument(ctx context.Context, shareableID string) (dto.DocumentResponse, error) {
	shareableID = strings.TrimSpace(shareableID)
	if shareableID == "" {
		return dto.DocumentResponse{}, ErrDocumentNotFound
	}

	document, err := s.repo.GetByShareableID(ctx, shareableID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DocumentResponse{}, ErrDocumentNotFound
		}
		return dto.DocumentResponse{}, fmt.Errorf("load document: %w", err)
	}

	return dto.NewDocumentResponse(document), nil
}

func (s *readerService) fetchDocument(ctx context.Context, url string) (string, int, error) {
	data, err := s.pdfs.Fetch(ctx, url)
	if errors.Is(err, fetch.ErrAccessDenied) {
		s.logger.Debug().Str("url", url).Msg("direct fetch denied, retrying with browser headers")
		data, err = s.pdfs.FetchBrowserLike(ctx, url)
	}
	if err != nil {
		return "", 0, fmt.Errorf("fetch pdf: %w", err)
	}

	text, pageCount, err := s.extractText(data)
	if err != nil {
		return "", 0, fmt.Errorf("extract text: %w", err)
	}

	return text, pageCount, nil
}

// extractStructure retries the extraction until the outline looks complete:
// at least one section, with the section ranges reaching the document's last
// page. Incomplete but schema-valid outlines are common on long papers, so
// the last attempt is kept even when coverage falls short.
func (s *readerService) extractStructure(ctx context.Context, text string, pageCount int) (documentStructure, error) {
	op := func(ctx context.Context) (documentStructure, error) {
		var structure documentStructure
		err := s.extractor.Extract(ctx, ai.ExtractionRequest{
			Task:         "document_structure",
			SystemPrompt: readerSystemPrompt,
			Prompt:       fmt.Sprintf("The document has %d pages. Extract its structure and return JSON.", pageCount),
			Schema:       documentStructureSchema,
			Document:     &ai.Document{Name: "paper", Text: text},
		}, &structure)
		if err != nil {
			return documentStructure{}, err
		}

		normalizeStructure(&structure)
		return structure, nil
	}

	accept := func(structure documentStructure) bool {
		return len(structure.Sections) > 0 && coveredPages(structure.Sections) >= pageCount
	}

	structure, err := retry.WithBackoff(ctx, s.maxAttempts, s.backoff, op, accept)
	if err != nil {
		return documentStructure{}, fmt.Errorf("extract structure: %w", err)
	}
	if len(structure.Sections) == 0 {
		return documentStructure{}, fmt.Errorf("extract structure: no sections recognised")
	}

	return structure, nil
}

const readerSystemPrompt = "You extract the structural outline of an academic paper. Respond with a JSON object " +
	"containing title, authors, sections (title, level, start_page, end_page, optional summary), figures " +
	"(label, caption, page), acronyms (short, long) and references (index, text, plus doi, year and authors when " +
	"printed). Section page ranges must cover the whole document."

func normalizeStructure(structure *documentStructure) {
	if structure.Authors == nil {
		structure.Authors = []string{}
	}
	if structure.Sections == nil {
		structure.Sections = []models.DocumentSection{}
	}
	if structure.Figures == nil {
		structure.Figures = []models.DocumentFigure{}
	}
	if structure.Acronyms == nil {
		structure.Acronyms = []models.DocumentAcronym{}
	}
	if structure.References == nil {
		structure.References = []models.DocumentReference{}
	}
	for i := range structure.Sections {
		if structure.Sections[i].Level < 1 {
			structure.Sections[i].Level = 1
		}
	}
}

func coveredPages(sections []models.DocumentSection) int {
	last := 0
	for _, section := range sections {
		if section.EndPage > last {
			last = section.EndPage
		}
	}
	return last
}

func mustJSON(value any) datatypes.JSON {
	raw, err := json.Marshal(value)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
