package fallback

import "github.com/kirillkom/docextract/internal/core/domain"

// Gate decides whether a field result is weak enough to ask a language model.
type Gate struct {
	Enabled   bool
	Threshold float64
}

func (g Gate) ShouldFallback(result domain.FieldResult, field domain.FieldConfig) bool {
	if !g.Enabled || !field.FallbackAllowed {
		return false
	}
	if result.Status == domain.FieldMissing && field.Required {
		return true
	}
	return result.Confidence < g.Threshold
}
