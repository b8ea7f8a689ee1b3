package domain

import (
	"sort"
	"strings"
)

// Rect is a bounding box in page coordinates with a top-left origin.
type Rect struct {
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	Page int     `json:"page"`
}

// Union returns the bounding envelope of both rects. The page is taken from r.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		X0:   min(r.X0, other.X0),
		Y0:   min(r.Y0, other.Y0),
		X1:   max(r.X1, other.X1),
		Y1:   max(r.Y1, other.Y1),
		Page: r.Page,
	}
}

// Envelope returns the union of all boxes, or false when there are none.
func Envelope(boxes []Rect) (Rect, bool) {
	if len(boxes) == 0 {
		return Rect{}, false
	}
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = out.Union(b)
	}
	return out, true
}

type Token struct {
	Text       string  `json:"text"`
	BBox       Rect    `json:"bbox"`
	LineID     int     `json:"line_id"`
	Confidence float64 `json:"confidence"`
}

// Page holds the tokens of one page. LineID values are unique only within a page.
type Page struct {
	PageNo   int     `json:"page_no"`
	Tokens   []Token `json:"tokens"`
	FullText string  `json:"full_text"`
	OCRUsed  bool    `json:"ocr_used"`
}

// Document is a normalized, tokenized document. It is never mutated after normalization.
type Document struct {
	DocumentID string `json:"document_id"`
	Pages      []Page `json:"pages"`
}

// FullText joins the page texts with a blank line, in page order.
func (d Document) FullText() string {
	texts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		texts = append(texts, p.FullText)
	}
	return strings.Join(texts, "\n\n")
}

// TokenCount returns the number of tokens across all pages.
func (d Document) TokenCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Tokens)
	}
	return n
}

// PageText rebuilds a page's text: words of a line joined by spaces, lines in line id order.
func PageText(tokens []Token) string {
	words := make(map[int][]string)
	lineIDs := make([]int, 0)
	for _, tok := range tokens {
		if _, ok := words[tok.LineID]; !ok {
			lineIDs = append(lineIDs, tok.LineID)
		}
		words[tok.LineID] = append(words[tok.LineID], tok.Text)
	}
	sort.Ints(lineIDs)

	lines := make([]string, 0, len(lineIDs))
	for _, id := range lineIDs {
		lines = append(lines, strings.Join(words[id], " "))
	}
	return strings.Join(lines, "\n")
}

// NewPage builds a page and derives its full text from the tokens.
func NewPage(pageNo int, tokens []Token, ocrUsed bool) Page {
	return Page{
		PageNo:   pageNo,
		Tokens:   tokens,
		FullText: PageText(tokens),
		OCRUsed:  ocrUsed,
	}
}
