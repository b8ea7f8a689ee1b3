package fallback

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/docextract/internal/core/domain"
)

const (
	snippetPages    = 2
	snippetMaxChars = 2000
)

func buildPrompt(doc domain.Document, field domain.FieldConfig) string {
	fieldType := field.Type
	if fieldType == "" {
		fieldType = "string"
	}
	label := cases.Title(language.Und).String(strings.ReplaceAll(field.Name, "_", " "))

	var b strings.Builder
	b.WriteString("You are a document data extraction assistant.\n")
	fmt.Fprintf(&b, "Extract the value of %q from the following document snippet.\n\n", label)
	fmt.Fprintf(&b, "Field description: A %s field\n", fieldType)
	fmt.Fprintf(&b, "Field type: %s\n\n", fieldType)
	b.WriteString("Document snippet:\n---\n")
	b.WriteString(documentSnippet(doc))
	b.WriteString("\n---\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Extract ONLY if clearly present in the text. Otherwise return null.\n")
	b.WriteString(`2. Return ONLY a JSON object with no other text: {"value": <extracted_value_or_null>, "evidence": "<exact_text_span_from_snippet>"}`)
	b.WriteString("\n3. Do not add explanations or markdown.\n")
	return b.String()
}

// documentSnippet takes the first pages, where header fields usually live, each page and
// the whole snippet bounded in characters.
func documentSnippet(doc domain.Document) string {
	parts := make([]string, 0, snippetPages)
	for i, page := range doc.Pages {
		if i == snippetPages {
			break
		}
		parts = append(parts, truncateRunes(page.FullText, snippetMaxChars/snippetPages))
	}
	return truncateRunes(strings.Join(parts, "\n\n"), snippetMaxChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
