package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaperDocument is the persisted result of the read-mode pipeline: the
// structure of a single paper extracted for the paginated reading view.
type PaperDocument struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	ShareableID string                      `gorm:"size:64;uniqueIndex;not null" json:"shareable_id"`
	Title       string                      `gorm:"type:text" json:"title"`
	SourceURL   string                      `gorm:"size:1024" json:"source_url"`
	Authors     datatypes.JSONSlice[string] `gorm:"type:json" json:"authors"`
	PageCount   int                         `json:"page_count"`
	Sections    datatypes.JSON              `gorm:"type:json" json:"sections"`
	Figures     datatypes.JSON              `gorm:"type:json" json:"figures"`
	Acronyms    datatypes.JSON              `gorm:"type:json" json:"acronyms"`
	References  datatypes.JSON              `gorm:"type:json" json:"references"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// DocumentSection is one extracted section with its page range.
type DocumentSection struct {
	Title     string `json:"title"`
	Level     int    `json:"level"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	Summary   string `json:"summary,omitempty"`
}

// DocumentFigure is one extracted figure or table with its caption.
type DocumentFigure struct {
	Label   string `json:"label"`
	Caption string `json:"caption"`
	Page    int    `json:"page"`
}

// DocumentAcronym maps an acronym to its expansion.
type DocumentAcronym struct {
	Short string `json:"short"`
	Long  string `json:"long"`
}

// DocumentReference is one entry of the paper's reference list.
type DocumentReference struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	DOI     string `json:"doi,omitempty"`
	Year    string `json:"year,omitempty"`
	Authors string `json:"authors,omitempty"`
}
