package rules

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/docextract/internal/core/domain"
)

var ruleExpr = regexp.MustCompile(`^\s*(\S+)\s*(>=|<=|==|!=|>|<)\s*(\S+)\s*$`)

// CheckRuleSyntax reports whether a cross-field rule can be parsed.
func CheckRuleSyntax(rule string) error {
	if !ruleExpr.MatchString(rule) {
		return fmt.Errorf("unsupported rule %q: want \"<lhs> <op> <rhs>\"", rule)
	}
	return nil
}

// CrossFieldErrors evaluates document-level rules against the extracted fields. A rule whose
// fields are not all present is skipped; an unevaluable rule is logged and skipped.
func CrossFieldErrors(fields map[string]domain.FieldResult, rules []domain.CrossFieldRule) []string {
	errs := []string{}
	for _, rule := range rules {
		if !allPresent(fields, rule.Fields) {
			continue
		}
		ok, err := evaluateRule(rule.Rule, fields)
		if err != nil {
			slog.Warn("cross_field_rule_skipped", "rule", rule.Name, "expression", rule.Rule, "error", err)
			continue
		}
		if !ok {
			errs = append(errs, ruleMessage(rule))
		}
	}
	return errs
}

func ruleMessage(rule domain.CrossFieldRule) string {
	if strings.TrimSpace(rule.Description) != "" {
		return rule.Description
	}
	return fmt.Sprintf("%s failed: %s", rule.Name, rule.Rule)
}

func allPresent(fields map[string]domain.FieldResult, names []string) bool {
	for _, name := range names {
		fr, ok := fields[name]
		if !ok || fr.Value == nil {
			return false
		}
	}
	return true
}

type errMissingOperand struct{ name string }

func (e errMissingOperand) Error() string { return fmt.Sprintf("operand %q has no value", e.name) }

func evaluateRule(rule string, fields map[string]domain.FieldResult) (bool, error) {
	m := ruleExpr.FindStringSubmatch(rule)
	if m == nil {
		return false, fmt.Errorf("unsupported rule syntax")
	}
	lhs, err := resolveOperand(m[1], fields)
	if err != nil {
		return false, err
	}
	rhs, err := resolveOperand(m[3], fields)
	if err != nil {
		return false, err
	}

	lf, lok := toFloat(lhs)
	rf, rok := toFloat(rhs)
	if lok && rok {
		return compare(m[2], cmpFloat(lf, rf)), nil
	}
	return compare(m[2], strings.Compare(stringify(lhs), stringify(rhs))), nil
}

// resolveOperand returns the field's value, or the operand as a number literal.
func resolveOperand(token string, fields map[string]domain.FieldResult) (any, error) {
	if fr, ok := fields[token]; ok {
		if fr.Value == nil {
			return nil, errMissingOperand{name: token}
		}
		return fr.Value, nil
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil, fmt.Errorf("unknown operand %q", token)
	}
	return f, nil
}

func cmpFloat(a, b float64) int {
	switch {
	case math.Abs(a-b) < 1e-9:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

func compare(op string, c int) bool {
	switch op {
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case "==":
		return c == 0
	default:
		return c != 0
	}
}
