package models

import (
	"time"

	"gorm.io/datatypes"
)

// FactCheckSession is the root aggregate of one fact-check run. It is written
// once, after all papers and analyses are known, and mutated afterwards only
// by full re-saves of its paper sub-tree.
type FactCheckSession struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	ShareableID string                      `gorm:"size:64;uniqueIndex;not null" json:"shareable_id"`
	Statement   string                      `gorm:"type:text;not null" json:"statement"`
	Keywords    datatypes.JSONSlice[string] `gorm:"type:json" json:"keywords"`
	// FinalVerdict stays null when aggregation failed or never ran.
	FinalVerdict datatypes.JSON   `gorm:"type:json" json:"final_verdict,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Papers       []CandidatePaper `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"papers"`
}

// CandidatePaper is one retrieved academic work attached to a session.
// ExternalID is unique only within the owning session.
type CandidatePaper struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	SessionID      uint                        `gorm:"index;not null" json:"-"`
	ExternalID     string                      `gorm:"size:255;not null" json:"external_id"`
	Title          string                      `gorm:"type:text" json:"title"`
	Authors        datatypes.JSONSlice[string] `gorm:"type:json" json:"authors"`
	Summary        *string                     `gorm:"type:text" json:"summary"`
	Published      *string                     `gorm:"size:32" json:"published"`
	DOI            *string                     `gorm:"size:255" json:"doi"`
	JournalName    *string                     `gorm:"size:512" json:"journal_name"`
	Publisher      *string                     `gorm:"size:512" json:"publisher"`
	RelevanceScore *float64                    `json:"relevance_score"`
	CitedByCount   *int                        `json:"cited_by_count"`
	Links          datatypes.JSON              `gorm:"type:json" json:"links"`
	PreEvalVerdict *string                     `gorm:"size:16" json:"pre_eval_verdict"`
	PreEvalSummary *string                     `gorm:"type:text" json:"pre_eval_summary"`
	PreEvalSnippet *string                     `gorm:"type:text" json:"pre_eval_snippet"`
	Analysis       *PaperAnalysis              `gorm:"foreignKey:PaperID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// PaperAnalysis is the deep-analysis result for one candidate paper, created
// once and never mutated afterwards.
type PaperAnalysis struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	PaperID          uint                        `gorm:"uniqueIndex;not null" json:"-"`
	PDFURL           *string                     `gorm:"size:1024" json:"pdf_url"`
	AnalysisMethod   string                      `gorm:"size:32" json:"analysis_method"`
	SupportLevel     string                      `gorm:"size:32" json:"support_level"`
	Confidence       *int                        `json:"confidence"`
	Summary          string                      `gorm:"type:text" json:"summary"`
	RelevantSections datatypes.JSON              `gorm:"type:json" json:"relevant_sections"`
	KeyFindings      datatypes.JSONSlice[string] `gorm:"type:json" json:"key_findings"`
	Limitations      datatypes.JSONSlice[string] `gorm:"type:json" json:"limitations"`
	Error            *string                     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
}
