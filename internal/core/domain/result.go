package domain

import "time"

type Method string

const (
	MethodAnchor Method = "anchor"
	MethodRegex  Method = "regex"
	MethodLayout Method = "layout"
	MethodLLM    Method = "llm"
)

// Base confidence per extraction method.
const (
	AnchorBaseWeight = 0.75
	RegexBaseWeight  = 0.55
	LayoutBaseWeight = 0.50
	LLMBaseWeight    = 0.65
)

type FieldStatus string

const (
	FieldVerified    FieldStatus = "verified"
	FieldNeedsReview FieldStatus = "needs_review"
	FieldMissing     FieldStatus = "missing"
)

type SourceLocation struct {
	Page int   `json:"page"`
	BBox *Rect `json:"bbox,omitempty"`
}

type Evidence struct {
	Snippet string `json:"snippet"`
}

// Candidate is one hypothesis for a field value produced by a single extraction method.
type Candidate struct {
	Value          any             `json:"value"`
	RawValue       string          `json:"raw_value"`
	Confidence     float64         `json:"confidence"`
	Method         Method          `json:"method"`
	SourceLocation *SourceLocation `json:"source_location,omitempty"`
	Evidence       *Evidence       `json:"evidence,omitempty"`
}

// FieldResult is the final decision for one field. A missing result carries no value and no method.
type FieldResult struct {
	FieldName        string          `json:"field_name"`
	Value            any             `json:"value"`
	RawValue         string          `json:"raw_value,omitempty"`
	Confidence       float64         `json:"confidence"`
	Status           FieldStatus     `json:"status"`
	Method           Method          `json:"method,omitempty"`
	SourceLocation   *SourceLocation `json:"source_location,omitempty"`
	Evidence         *Evidence       `json:"evidence,omitempty"`
	Alternatives     []Candidate     `json:"alternatives"`
	ValidationErrors []string        `json:"validation_errors"`
}

// MissingField returns an empty missing result for the field.
func MissingField(name string) FieldResult {
	return FieldResult{
		FieldName:        name,
		Status:           FieldMissing,
		Alternatives:     []Candidate{},
		ValidationErrors: []string{},
	}
}

type ValidationSummary struct {
	RequiredPresent   bool     `json:"required_present"`
	RequiredMissing   []string `json:"required_missing"`
	CrossFieldErrors  []string `json:"cross_field_errors"`
	OverallConfidence float64  `json:"overall_confidence"`
}

type Artifact struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Kind       string    `json:"kind"`
	URI        string    `json:"uri"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ArtifactOriginal = "original"
	ArtifactOCRText  = "ocr_text"
	ArtifactResult   = "extraction_result"
)

// FieldTrace records how a field was decided when debug tracing is on.
type FieldTrace struct {
	Candidates       int     `json:"candidates"`
	WinnerMethod     Method  `json:"winner_method,omitempty"`
	FallbackUsed     bool    `json:"fallback_used"`
	DurationMS       float64 `json:"duration_ms"`
	ExtractionFailed string  `json:"extraction_failed,omitempty"`
}

type DebugTrace struct {
	Pages      int                   `json:"pages"`
	Tokens     int                   `json:"tokens"`
	OCRPages   []int                 `json:"ocr_pages"`
	Fields     map[string]FieldTrace `json:"fields"`
	DurationMS float64               `json:"duration_ms"`
}

type ExtractionResult struct {
	DocumentID        string                 `json:"document_id"`
	JobID             string                 `json:"job_id"`
	SupplierID        string                 `json:"supplier_id,omitempty"`
	DocumentType      string                 `json:"document_type"`
	Fields            map[string]FieldResult `json:"fields"`
	ValidationSummary ValidationSummary      `json:"validation_summary"`
	Artifacts         []Artifact             `json:"artifacts"`
	DebugTrace        *DebugTrace            `json:"debug_trace,omitempty"`
}
