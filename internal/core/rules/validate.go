package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/docextract/internal/core/domain"
)

const isoDate = "2006-01-02"

// Validator applies a field's validators to a normalized value. Unknown validators are skipped.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// NewValidatorWithClock returns a validator that uses now for not_future checks.
func NewValidatorWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// Validate returns human-readable problems with value. A validator with a malformed
// argument reports its own problem and the remaining validators still run.
func (v *Validator) Validate(value any, field domain.FieldConfig) ([]string, error) {
	problems := []string{}
	if value == nil {
		if field.Required {
			problems = append(problems, fmt.Sprintf("%s is required but missing", field.Name))
		}
		return problems, nil
	}

	for _, spec := range field.Validators {
		problem, err := v.apply(spec, value, field.Name)
		if err != nil {
			problem = fmt.Sprintf("%s validation error: %s: %v", field.Name, spec, err)
		}
		if problem != "" {
			problems = append(problems, problem)
		}
	}
	return problems, nil
}

func (v *Validator) apply(spec domain.ValidatorSpec, value any, name string) (string, error) {
	switch spec.Name {
	case "min_length":
		n, err := intArg(spec.Arg, 1)
		if err != nil {
			return "", err
		}
		if utf8.RuneCountInString(stringify(value)) < n {
			return fmt.Sprintf("%s too short (min %d chars)", name, n), nil
		}
	case "max_length":
		n, err := intArg(spec.Arg, 255)
		if err != nil {
			return "", err
		}
		if utf8.RuneCountInString(stringify(value)) > n {
			return fmt.Sprintf("%s too long (max %d chars)", name, n), nil
		}
	case "valid_date":
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%s is not a valid date", name), nil
		}
		if _, err := time.Parse(isoDate, s); err != nil {
			return fmt.Sprintf("%s is not a valid date", name), nil
		}
	case "not_future":
		s, ok := value.(string)
		if !ok {
			return "", nil
		}
		d, err := time.Parse(isoDate, s)
		if err != nil {
			return fmt.Sprintf("%s validation error: %v", name, err), nil
		}
		now := v.now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if d.After(today) {
			return fmt.Sprintf("%s is in the future", name), nil
		}
	case "positive_number":
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%s validation error: %q is not a number", name, stringify(value)), nil
		}
		if f < 0 {
			return fmt.Sprintf("%s must be positive", name), nil
		}
	case "non_empty":
		if strings.TrimSpace(stringify(value)) == "" {
			return fmt.Sprintf("%s is empty", name), nil
		}
	}
	return "", nil
}

// CheckValidatorArg reports a malformed argument for validators that take one.
func CheckValidatorArg(spec domain.ValidatorSpec) error {
	switch spec.Name {
	case "min_length", "max_length":
		n, err := intArg(spec.Arg, 0)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("invalid argument %q: must not be negative", spec.Arg)
		}
	}
	return nil
}

// KnownValidator reports whether name is a recognized validator.
func KnownValidator(name string) bool {
	switch name {
	case "min_length", "max_length", "valid_date", "not_future", "positive_number", "non_empty":
		return true
	default:
		return false
	}
}

func intArg(arg string, fallback int) (int, error) {
	if strings.TrimSpace(arg) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid argument %q: %w", arg, err)
	}
	return n, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
