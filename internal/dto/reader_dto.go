package dto

import (
	"encoding/json"
	"time"

	"github.com/paperproof/paperproof-api/internal/models"
)

// DocumentCreateRequest starts read-mode structure extraction for a PDF.
type DocumentCreateRequest struct {
	PDFURL string `json:"pdf_url" validate:"required,url"`
}

// DocumentResponse is the extracted structure of one paper.
type DocumentResponse struct {
	ShareableID string                     `json:"shareable_id"`
	Title       string                     `json:"title"`
	SourceURL   string                     `json:"source_url"`
	Authors     []string                   `json:"authors"`
	PageCount   int                        `json:"page_count"`
	Sections    []models.DocumentSection   `json:"sections"`
	Figures     []models.DocumentFigure    `json:"figures"`
	Acronyms    []models.DocumentAcronym   `json:"acronyms"`
	References  []models.DocumentReference `json:"references"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// NewDocumentResponse converts a persisted document into its transfer shape.
func NewDocumentResponse(document models.PaperDocument) DocumentResponse {
	response := DocumentResponse{
		ShareableID: document.ShareableID,
		Title:       document.Title,
		SourceURL:   document.SourceURL,
		Authors:     document.Authors,
		PageCount:   document.PageCount,
		Sections:    []models.DocumentSection{},
		Figures:     []models.DocumentFigure{},
		Acronyms:    []models.DocumentAcronym{},
		References:  []models.DocumentReference{},
		CreatedAt:   document.CreatedAt,
	}

	if response.Authors == nil {
		response.Authors = []string{}
	}

	decodeJSON(document.Sections, &response.Sections)
	decodeJSON(document.Figures, &response.Figures)
	decodeJSON(document.Acronyms, &response.Acronyms)
	decodeJSON(document.References, &response.References)

	return response
}

func decodeJSON(raw []byte, dest any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dest)
}
