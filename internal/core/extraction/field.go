package extraction

import (
	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

const (
	VerifiedThreshold    = 0.85
	NeedsReviewThreshold = 0.50
	maxAlternatives      = 4
)

// ExtractField runs anchor then regex extraction for one field, ranks the candidates and
// decides the status. It has no side effects; errors come only from a malformed pattern or
// an unexpected normalizer failure.
func ExtractField(
	doc domain.Document,
	field domain.FieldConfig,
	normalizer ports.Normalizer,
	validator ports.Validator,
) (domain.FieldResult, error) {
	result, _, err := ExtractFieldCounted(doc, field, normalizer, validator)
	return result, err
}

// ExtractFieldCounted is ExtractField that also reports how many candidates were scored,
// including those dropped from the alternatives list.
func ExtractFieldCounted(
	doc domain.Document,
	field domain.FieldConfig,
	normalizer ports.Normalizer,
	validator ports.Validator,
) (domain.FieldResult, int, error) {
	candidates := AnchorExtract(doc, field)
	regexCandidates, err := RegexExtract(doc, field)
	if err != nil {
		return domain.FieldResult{}, 0, err
	}
	candidates = append(candidates, regexCandidates...)

	if len(candidates) == 0 {
		return domain.MissingField(field.Name), 0, nil
	}

	ranked, err := ScoreCandidates(candidates, field, normalizer, validator)
	if err != nil {
		return domain.FieldResult{}, 0, err
	}
	return resultFromRanked(field.Name, ranked), len(ranked), nil
}

// StatusFor maps a winner's confidence to a field status.
func StatusFor(confidence float64) domain.FieldStatus {
	switch {
	case confidence >= VerifiedThreshold:
		return domain.FieldVerified
	case confidence >= NeedsReviewThreshold:
		return domain.FieldNeedsReview
	default:
		return domain.FieldMissing
	}
}

func resultFromRanked(name string, ranked []domain.Candidate) domain.FieldResult {
	best := ranked[0]
	alternatives := append([]domain.Candidate{}, ranked[1:min(len(ranked), maxAlternatives+1)]...)

	status := StatusFor(best.Confidence)
	if status == domain.FieldMissing {
		// Not trustworthy enough to report: keep the score and runners-up, drop the value.
		result := domain.MissingField(name)
		result.Confidence = best.Confidence
		result.Alternatives = alternatives
		return result
	}

	return domain.FieldResult{
		FieldName:        name,
		Value:            best.Value,
		RawValue:         best.RawValue,
		Confidence:       best.Confidence,
		Status:           status,
		Method:           best.Method,
		SourceLocation:   best.SourceLocation,
		Evidence:         best.Evidence,
		Alternatives:     alternatives,
		ValidationErrors: []string{},
	}
}
