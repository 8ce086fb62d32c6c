package models

// Pre-evaluation stances a paper's abstract can take toward a statement.
const (
	PreEvalSupports    = "supports"
	PreEvalContradicts = "contradicts"
	PreEvalNeutral     = "neutral"
	PreEvalNotRelevant = "not_relevant"
)

// Support levels produced by deep analysis, finer grained than the
// pre-evaluation stances.
const (
	SupportStrongly           = "strongly_supports"
	SupportSupports           = "supports"
	SupportNeutral            = "neutral"
	SupportContradicts        = "contradicts"
	SupportStronglyContradict = "strongly_contradicts"
	SupportInsufficientData   = "insufficient_data"
)

// Analysis methods recording which deep-analysis branch succeeded. The method
// drives the confidence caveat shown for abstract-only results and must
// survive persistence untouched.
const (
	MethodPDFDirectURL     = "pdf_direct_url"
	MethodPDFManualFetch   = "pdf_manual_fetch"
	MethodAbstractFallback = "abstract_fallback"
	MethodAbstractOnly     = "abstract_only"
)

// Final verdict categories.
const (
	VerdictTrue                 = "true"
	VerdictMostlyTrue           = "mostly_true"
	VerdictMixedEvidence        = "mixed_evidence"
	VerdictMostlyFalse          = "mostly_false"
	VerdictFalse                = "false"
	VerdictInsufficientEvidence = "insufficient_evidence"
)

// FinalVerdicts lists the allowed final verdict categories.
var FinalVerdicts = []string{
	VerdictTrue,
	VerdictMostlyTrue,
	VerdictMixedEvidence,
	VerdictMostlyFalse,
	VerdictFalse,
	VerdictInsufficientEvidence,
}

// FinalVerdict is the aggregated judgement over all usable evidence. It is
// embedded in the session record as JSON rather than persisted relationally.
// Confidence is an integer percentage, 0-100.
type FinalVerdict struct {
	FinalVerdict               string   `json:"final_verdict"`
	ConfidenceScore            int      `json:"confidence_score"`
	Summary                    string   `json:"summary"`
	Reasoning                  string   `json:"reasoning"`
	SupportingEvidenceCount    int      `json:"supporting_evidence_count"`
	ContradictingEvidenceCount int      `json:"contradicting_evidence_count"`
	NeutralEvidenceCount       int      `json:"neutral_evidence_count"`
	KeyFindings                []string `json:"key_findings"`
	Limitations                []string `json:"limitations"`
}

// RelevantSection is one quoted passage supporting a deep-analysis verdict.
type RelevantSection struct {
	SectionTitle string `json:"section_title,omitempty"`
	TextSnippet  string `json:"text_snippet"`
	PageNumber   *int   `json:"page_number,omitempty"`
	Reasoning    string `json:"reasoning"`
}

// PaperLink is an external resource attached to a candidate paper.
type PaperLink struct {
	Href     string `json:"href"`
	MimeType string `json:"mime_type,omitempty"`
	Relation string `json:"relation,omitempty"`
}
