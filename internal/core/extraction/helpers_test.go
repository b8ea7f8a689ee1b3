package extraction

import (
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// docFromLines builds a one-page document with one line id per input line.
func docFromLines(lines ...string) domain.Document {
	var tokens []domain.Token
	for lineID, line := range lines {
		for i, word := range strings.Fields(line) {
			tokens = append(tokens, domain.Token{
				Text: word,
				BBox: domain.Rect{
					X0:   float64(i) * 60,
					Y0:   float64(lineID) * 14,
					X1:   float64(i)*60 + 55,
					Y1:   float64(lineID)*14 + 12,
					Page: 1,
				},
				LineID:     lineID,
				Confidence: 1,
			})
		}
	}
	return domain.Document{
		DocumentID: "doc-test",
		Pages:      []domain.Page{domain.NewPage(1, tokens, false)},
	}
}

func invoiceDoc() domain.Document {
	return docFromLines(
		"INVOICE",
		"Vendor: Acme Supplies Inc.",
		"Invoice Number: INV-2024-001",
		"Invoice Date: 01/15/2024",
		"Due Date: 02/15/2024",
		"Subtotal: $4,450.00",
		"Tax (10%): $445.00",
		"Total Amount: $4,895.00",
	)
}

type normalizerFake struct {
	fn func(raw string) (any, error)
}

func (f normalizerFake) Normalize(raw string, _ domain.FieldConfig) (any, error) {
	if f.fn == nil {
		return raw, nil
	}
	return f.fn(raw)
}

func failingNormalizer() normalizerFake {
	return normalizerFake{fn: func(raw string) (any, error) {
		return nil, &domain.NormalizationError{Normalizer: "parse_money", Input: raw}
	}}
}

type validatorFake struct {
	problems func(value any) []string
	err      error
}

func (f validatorFake) Validate(value any, _ domain.FieldConfig) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.problems == nil {
		return nil, nil
	}
	return f.problems(value), nil
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
