package rules

import (
	"math"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// Summarize builds the document-level validation summary.
// Overall confidence is the verified confidence mass over the count of non-missing fields.
func Summarize(fields map[string]domain.FieldResult, cfg domain.DocumentConfig) domain.ValidationSummary {
	missing := []string{}
	for _, f := range cfg.Fields {
		if !f.Required {
			continue
		}
		fr, ok := fields[f.Name]
		if !ok || fr.Status == domain.FieldMissing {
			missing = append(missing, f.Name)
		}
	}

	var verifiedSum float64
	present := 0
	for _, fr := range fields {
		if fr.Status == domain.FieldMissing {
			continue
		}
		present++
		if fr.Status == domain.FieldVerified {
			verifiedSum += fr.Confidence
		}
	}
	overall := 0.0
	if present > 0 {
		overall = math.Round(verifiedSum/float64(present)*1000) / 1000
	}

	return domain.ValidationSummary{
		RequiredPresent:   len(missing) == 0,
		RequiredMissing:   missing,
		CrossFieldErrors:  CrossFieldErrors(fields, cfg.CrossFieldValidations),
		OverallConfidence: overall,
	}
}
