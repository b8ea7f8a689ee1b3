package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docextract/internal/core/domain"
)

const snippetContextRunes = 40

// RegexExtract applies the field's patterns, case-insensitive and multiline, to the document's
// full text. Group 1 is preferred over the whole match. A pattern that does not compile is an error.
func RegexExtract(doc domain.Document, field domain.FieldConfig) ([]domain.Candidate, error) {
	if len(field.Patterns) == 0 {
		return nil, nil
	}
	text := doc.FullText()

	var out []domain.Candidate
	for _, pattern := range field.Patterns {
		re, err := CompilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if re.NumSubexp() >= 1 {
				// Group 1 did not take part in this match.
				if loc[2] < 0 {
					continue
				}
				start, end = loc[2], loc[3]
			}
			raw := strings.TrimSpace(text[start:end])
			if raw == "" {
				continue
			}
			out = append(out, domain.Candidate{
				Value:          raw,
				RawValue:       raw,
				Confidence:     domain.RegexBaseWeight,
				Method:         domain.MethodRegex,
				SourceLocation: locateValue(doc, raw),
				Evidence:       &domain.Evidence{Snippet: contextSnippet(text, loc[0], loc[1])},
			})
		}
	}
	return out, nil
}

// CompilePattern compiles a configured pattern with case-insensitive, multiline flags.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return re, nil
}

// locateValue finds the first contiguous token run matching the value's words and returns
// its envelope. Without an exact run the location is page 0 with no box.
func locateValue(doc domain.Document, value string) *domain.SourceLocation {
	words := strings.Fields(strings.ToLower(value))
	if len(words) == 0 {
		return &domain.SourceLocation{}
	}
	for _, page := range doc.Pages {
		tokens := page.Tokens
		for i, tok := range tokens {
			if strings.Trim(strings.ToLower(tok.Text), "$,.:") != strings.Trim(words[0], "$,.") {
				continue
			}
			if i+len(words) > len(tokens) {
				continue
			}
			boxes := []domain.Rect{tok.BBox}
			matched := true
			for j, w := range words[1:] {
				next := tokens[i+j+1]
				if strings.Trim(strings.ToLower(next.Text), "$,.") != strings.Trim(w, "$,.") {
					matched = false
					break
				}
				boxes = append(boxes, next.BBox)
			}
			if !matched {
				continue
			}
			bbox, _ := domain.Envelope(boxes)
			return &domain.SourceLocation{Page: page.PageNo, BBox: &bbox}
		}
	}
	return &domain.SourceLocation{}
}

// contextSnippet returns the match span with up to 40 characters on each side, trimmed.
func contextSnippet(text string, start, end int) string {
	from := start
	for n := 0; n < snippetContextRunes && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < snippetContextRunes && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return strings.TrimSpace(text[from:to])
}
