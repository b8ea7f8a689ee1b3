package extraction

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

const (
	normalizeBonus       = 0.10
	validBonus           = 0.15
	validationErrPenalty = 0.05
	conflictPenalty      = 0.05
	conflictMinScore     = 0.4
)

// ScoreCandidates adjusts each candidate's confidence for normalization and validation outcome,
// applies a single conflict penalty when disagreeing answers exist, and ranks by confidence.
// Candidates are copied; the input slice is not modified. Ties keep emission order.
func ScoreCandidates(
	candidates []domain.Candidate,
	field domain.FieldConfig,
	normalizer ports.Normalizer,
	validator ports.Validator,
) ([]domain.Candidate, error) {
	scored := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		adjusted, err := scoreCandidate(c, field, normalizer, validator)
		if err != nil {
			return nil, err
		}
		scored = append(scored, adjusted)
	}

	if hasConflict(scored) {
		for i := range scored {
			scored[i].Confidence -= conflictPenalty
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})
	return scored, nil
}

func scoreCandidate(
	c domain.Candidate,
	field domain.FieldConfig,
	normalizer ports.Normalizer,
	validator ports.Validator,
) (domain.Candidate, error) {
	score := c.Confidence
	value := any(c.RawValue)

	normalized, err := normalizer.Normalize(c.RawValue, field)
	switch {
	case err == nil:
		score += normalizeBonus
		value = normalized
	case domain.IsKind(err, domain.ErrNormalization):
		// unparseable: keep the raw text, no bonus
	default:
		return domain.Candidate{}, fmt.Errorf("normalize %s candidate: %w", field.Name, err)
	}
	c.Value = value

	problems, err := validator.Validate(value, field)
	if err == nil {
		if len(problems) == 0 {
			score += validBonus
		} else {
			score -= validationErrPenalty * float64(len(problems))
		}
	}

	c.Confidence = min(score, 1.0)
	return c, nil
}

// hasConflict reports whether a later candidate above the conflict floor disagrees with the first.
func hasConflict(scored []domain.Candidate) bool {
	if len(scored) < 2 {
		return false
	}
	first := scored[0].Value
	for _, c := range scored[1:] {
		if !reflect.DeepEqual(c.Value, first) && c.Confidence > conflictMinScore {
			return true
		}
	}
	return false
}
