package extraction

import (
	"testing"
	"time"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/rules"
)

func realRules() (*rules.Normalizer, *rules.Validator) {
	return rules.NewNormalizer(), rules.NewValidatorWithClock(func() time.Time {
		return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	})
}

func TestExtractFieldNoCandidates(t *testing.T) {
	n, v := realRules()
	got, err := ExtractField(docFromLines("Hello World"), domain.FieldConfig{
		Name:     "invoice_number",
		Required: true,
		Anchors:  []string{"Invoice Number"},
	}, n, v)
	if err != nil {
		t.Fatalf("ExtractField() error = %v", err)
	}
	if got.Status != domain.FieldMissing || got.Value != nil || got.Method != "" || got.Confidence != 0 {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.FieldName != "invoice_number" {
		t.Fatalf("field name = %q", got.FieldName)
	}
}

func TestExtractFieldInvoiceNumber(t *testing.T) {
	n, v := realRules()
	field := domain.FieldConfig{
		Name:         "invoice_number",
		Required:     true,
		Anchors:      []string{"Invoice Number"},
		Patterns:     []string{`invoice\s+number:\s*(\S+)`},
		SearchWindow: domain.WindowSameLineOrNext,
		Normalizers:  []string{"strip"},
		Validators:   []domain.ValidatorSpec{{Name: "non_empty"}},
	}
	got, err := ExtractField(invoiceDoc(), field, n, v)
	if err != nil {
		t.Fatalf("ExtractField() error = %v", err)
	}
	if got.Value != "INV-2024-001" || got.RawValue != "INV-2024-001" {
		t.Fatalf("value = %#v", got.Value)
	}
	if got.Method != domain.MethodAnchor {
		t.Fatalf("method = %q", got.Method)
	}
	if got.Status != domain.FieldVerified {
		t.Fatalf("status = %q (confidence %v)", got.Status, got.Confidence)
	}
	assertClose(t, "confidence", got.Confidence, 1.0)
	if len(got.Alternatives) != 1 || got.Alternatives[0].Method != domain.MethodRegex {
		t.Fatalf("alternatives = %+v", got.Alternatives)
	}
	assertClose(t, "alternative confidence", got.Alternatives[0].Confidence, 0.80)
	if got.Evidence == nil || got.SourceLocation == nil || got.SourceLocation.BBox == nil {
		t.Fatalf("expected evidence and location, got %+v", got)
	}
}

func TestExtractFieldTotalAmountByPattern(t *testing.T) {
	n, v := realRules()
	field := domain.FieldConfig{
		Name:        "total_amount",
		Type:        "money",
		Patterns:    []string{`Total Amount:\s*\$([\d,]+\.\d{2})`},
		Normalizers: []string{"parse_money"},
		Validators:  []domain.ValidatorSpec{{Name: "positive_number"}},
	}
	got, err := ExtractField(invoiceDoc(), field, n, v)
	if err != nil {
		t.Fatalf("ExtractField() error = %v", err)
	}
	if got.Value != 4895.00 {
		t.Fatalf("value = %#v, want 4895.00", got.Value)
	}
	if got.RawValue != "4,895.00" || got.Method != domain.MethodRegex {
		t.Fatalf("unexpected result %+v", got)
	}
	assertClose(t, "confidence", got.Confidence, 0.80)
	if got.Status != domain.FieldNeedsReview {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		conf float64
		want domain.FieldStatus
	}{
		{conf: 1.0, want: domain.FieldVerified},
		{conf: 0.85, want: domain.FieldVerified},
		{conf: 0.8499, want: domain.FieldNeedsReview},
		{conf: 0.50, want: domain.FieldNeedsReview},
		{conf: 0.4999, want: domain.FieldMissing},
		{conf: -0.1, want: domain.FieldMissing},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.conf); got != tc.want {
			t.Fatalf("StatusFor(%v) = %q, want %q", tc.conf, got, tc.want)
		}
	}
}

func TestExtractFieldLowConfidenceIsMissing(t *testing.T) {
	threeProblems := validatorFake{problems: func(any) []string { return []string{"a", "b", "c"} }}
	field := domain.FieldConfig{Name: "total", Anchors: []string{"Total"}, SearchWindow: domain.WindowSameLineRight}

	got, err := ExtractField(docFromLines("Totax $5"), field, failingNormalizer(), threeProblems)
	if err != nil {
		t.Fatalf("ExtractField() error = %v", err)
	}
	if got.Status != domain.FieldMissing {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Value != nil || got.Method != "" || got.SourceLocation != nil || got.Evidence != nil {
		t.Fatalf("missing result must not carry a value: %+v", got)
	}
	assertClose(t, "confidence", got.Confidence, 0.45)
}

func TestExtractFieldCapsAlternatives(t *testing.T) {
	field := domain.FieldConfig{Name: "n", Patterns: []string{`(\d+)`}}
	got, err := ExtractField(docFromLines("1 2 3 4 5 6"), field, normalizerFake{}, validatorFake{})
	if err != nil {
		t.Fatalf("ExtractField() error = %v", err)
	}
	if len(got.Alternatives) != 4 {
		t.Fatalf("expected 4 alternatives, got %d", len(got.Alternatives))
	}
	if got.Value != "1" || got.Alternatives[3].Value != "5" {
		t.Fatalf("unexpected ranking %v %+v", got.Value, got.Alternatives)
	}
}

func TestExtractFieldCountedIncludesDroppedCandidates(t *testing.T) {
	field := domain.FieldConfig{Name: "n", Patterns: []string{`(\d+)`}}
	_, count, err := ExtractFieldCounted(docFromLines("1 2 3 4 5 6"), field, normalizerFake{}, validatorFake{})
	if err != nil {
		t.Fatalf("ExtractFieldCounted() error = %v", err)
	}
	if count != 6 {
		t.Fatalf("count = %d, want 6", count)
	}
}

func TestExtractFieldCountedLowConfidenceWinner(t *testing.T) {
	threeProblems := validatorFake{problems: func(any) []string { return []string{"a", "b", "c"} }}
	field := domain.FieldConfig{Name: "total", Anchors: []string{"Total"}, SearchWindow: domain.WindowSameLineRight}

	got, count, err := ExtractFieldCounted(docFromLines("Totax $5"), field, failingNormalizer(), threeProblems)
	if err != nil {
		t.Fatalf("ExtractFieldCounted() error = %v", err)
	}
	if got.Status != domain.FieldMissing || count != 1 {
		t.Fatalf("status = %q count = %d, want missing with 1 candidate", got.Status, count)
	}

	_, count, err = ExtractFieldCounted(docFromLines("Hello World"), field, failingNormalizer(), threeProblems)
	if err != nil || count != 0 {
		t.Fatalf("ExtractFieldCounted() = %d, %v; want 0 candidates", count, err)
	}
}

func TestExtractFieldInvalidPattern(t *testing.T) {
	field := domain.FieldConfig{Name: "n", Patterns: []string{`([`}}
	if _, err := ExtractField(invoiceDoc(), field, normalizerFake{}, validatorFake{}); err == nil {
		t.Fatalf("expected error for malformed pattern")
	}
}
