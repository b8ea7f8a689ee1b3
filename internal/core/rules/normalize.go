package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/docextract/internal/core/domain"
)

var (
	currencySymbols = regexp.MustCompile(`[$€£¥₹]`)
	moneyNoise      = regexp.MustCompile(`[€£¥₹$\s]`)
	europeanMoney   = regexp.MustCompile(`^\d{1,3}(\.\d{3})*(,\d{2})?$`)
	errEmptyDate    = errors.New("empty date string")
	numericDate     = regexp.MustCompile(`^\d{1,2}[./-]\d{1,2}[./-]\d{2,4}$`)
	dateSeparators  = strings.NewReplacer(".", "/", "-", "/")
)

var normalizerByName = map[string]func(string) (any, error){
	"strip":                  func(s string) (any, error) { return strings.TrimSpace(s), nil },
	"upper":                  func(s string) (any, error) { return strings.ToUpper(s), nil },
	"lower":                  func(s string) (any, error) { return strings.ToLower(s), nil },
	"title_case":             func(s string) (any, error) { return cases.Title(language.Und).String(s), nil },
	"parse_date":             func(s string) (any, error) { return ParseDate(s) },
	"parse_money":            func(s string) (any, error) { return ParseMoney(s) },
	"remove_currency_symbol": func(s string) (any, error) { return strings.TrimSpace(currencySymbols.ReplaceAllString(s, "")), nil },
}

// Normalizer applies a field's normalizer chain in order. Unknown names are skipped.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Normalize(raw string, field domain.FieldConfig) (any, error) {
	var value any = raw
	for _, name := range field.Normalizers {
		fn, ok := normalizerByName[name]
		if !ok {
			continue
		}
		next, err := fn(stringify(value))
		if err != nil {
			return nil, err
		}
		value = next
	}
	return value, nil
}

// KnownNormalizer reports whether name is a recognized normalizer.
func KnownNormalizer(name string) bool {
	_, ok := normalizerByName[name]
	return ok
}

// ParseDate parses free-form dates into YYYY-MM-DD. Numeric dates are read month first;
// when the leading number cannot be a month ("15/01/2024", "15.01.2024") they are read day first.
func ParseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &domain.NormalizationError{Normalizer: "parse_date", Input: raw, Err: errEmptyDate}
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil && numericDate.MatchString(raw) {
		// dateparse ignores the preference for dotted dates, so retry in slash form
		if dayFirst, retryErr := dateparse.ParseAny(dateSeparators.Replace(raw), dateparse.PreferMonthFirst(false)); retryErr == nil {
			t, err = dayFirst, nil
		}
	}
	if err != nil {
		return "", &domain.NormalizationError{Normalizer: "parse_date", Input: raw, Err: err}
	}
	return t.Format("2006-01-02"), nil
}

// ParseMoney parses "$1,234.56" and European "1.234,56" into a number.
func ParseMoney(raw string) (float64, error) {
	cleaned := moneyNoise.ReplaceAllString(strings.TrimSpace(raw), "")
	if europeanMoney.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, &domain.NormalizationError{Normalizer: "parse_money", Input: raw, Err: err}
	}
	f, _ := d.Float64()
	return f, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
