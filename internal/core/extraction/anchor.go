package extraction

import (
	"strings"

	"github.com/kirillkom/docextract/internal/core/domain"
)

const snippetTokensBefore = 2

// AnchorExtract scans every page for fuzzy matches of the field's anchors and collects the
// value tokens following each match according to the field's search window.
// One candidate is emitted per matched (occurrence, anchor) pair.
func AnchorExtract(doc domain.Document, field domain.FieldConfig) []domain.Candidate {
	anchors := splitAnchors(field.Anchors)
	if len(anchors) == 0 {
		return nil
	}

	var out []domain.Candidate
	for _, page := range doc.Pages {
		tokens := page.Tokens
		for i := range tokens {
			for _, anchor := range anchors {
				score, ok := matchAnchor(tokens, i, anchor)
				if !ok || score < AnchorThreshold {
					continue
				}
				last := i + len(anchor) - 1
				values := cleanValueTokens(tokens, valueWindow(tokens, last, field.SearchWindow))
				if len(values) == 0 {
					continue
				}
				out = append(out, anchorCandidate(page.PageNo, tokens, i, values, score))
			}
		}
	}
	return out
}

// splitAnchors lower-cases each anchor phrase into words and drops blank phrases.
func splitAnchors(phrases []string) [][]string {
	out := make([][]string, 0, len(phrases))
	for _, phrase := range phrases {
		words := strings.Fields(strings.ToLower(phrase))
		if len(words) == 0 {
			continue
		}
		out = append(out, words)
	}
	return out
}

func normalizeAnchorToken(text string) string {
	return strings.ToLower(strings.TrimRight(text, ":#"))
}

// matchAnchor compares the anchor against the token span starting at i.
// It reports false when the span runs past the end of the page.
func matchAnchor(tokens []domain.Token, i int, anchor []string) (float64, bool) {
	if len(anchor) == 1 {
		return Similarity(normalizeAnchorToken(tokens[i].Text), anchor[0]), true
	}
	if i+len(anchor) > len(tokens) {
		return 0, false
	}
	span := make([]string, len(anchor))
	for k := range anchor {
		span[k] = normalizeAnchorToken(tokens[i+k].Text)
	}
	return Similarity(strings.Join(span, " "), strings.Join(anchor, " ")), true
}

// valueWindow returns indexes of the tokens the search window selects after the anchor's last token.
func valueWindow(tokens []domain.Token, last int, window domain.SearchWindow) []int {
	switch window {
	case domain.WindowNext3Lines:
		return nextLines(tokens, last, 3)
	case domain.WindowSameLineRight:
		return sameLine(tokens, last)
	default:
		if idx := sameLine(tokens, last); len(idx) > 0 {
			return idx
		}
		return nextLine(tokens, last)
	}
}

func sameLine(tokens []domain.Token, last int) []int {
	anchor := tokens[last]
	var out []int
	for j := last + 1; j < len(tokens); j++ {
		if tokens[j].LineID != anchor.LineID || tokens[j].BBox.Page != anchor.BBox.Page {
			break
		}
		out = append(out, j)
	}
	return out
}

// nextLine returns every token on the page carrying the first line id that follows the anchor.
func nextLine(tokens []domain.Token, last int) []int {
	anchor := tokens[last]
	next, found := 0, false
	for j := last + 1; j < len(tokens); j++ {
		if tokens[j].LineID != anchor.LineID {
			next, found = tokens[j].LineID, true
			break
		}
	}
	if !found {
		return nil
	}

	var out []int
	for j, tok := range tokens {
		if tok.LineID == next && tok.BBox.Page == anchor.BBox.Page {
			out = append(out, j)
		}
	}
	return out
}

// nextLines collects tokens from the lines after the anchor's line, in order,
// stopping once limit distinct lines have been seen.
func nextLines(tokens []domain.Token, last, limit int) []int {
	anchor := tokens[last]
	seen := make(map[int]struct{}, limit)
	var out []int
	for j := last + 1; j < len(tokens); j++ {
		tok := tokens[j]
		if tok.LineID == anchor.LineID || tok.BBox.Page != anchor.BBox.Page {
			continue
		}
		seen[tok.LineID] = struct{}{}
		out = append(out, j)
		if len(seen) >= limit {
			break
		}
	}
	return out
}

type valueToken struct {
	index int
	text  string
	bbox  domain.Rect
}

// cleanValueTokens trims every token, strips a leading colon from the first and drops empties.
func cleanValueTokens(tokens []domain.Token, indexes []int) []valueToken {
	out := make([]valueToken, 0, len(indexes))
	for k, j := range indexes {
		text := strings.TrimSpace(tokens[j].Text)
		if k == 0 {
			text = strings.TrimSpace(strings.TrimLeft(text, ":"))
		}
		if text == "" {
			continue
		}
		out = append(out, valueToken{index: j, text: text, bbox: tokens[j].BBox})
	}
	return out
}

func anchorCandidate(pageNo int, tokens []domain.Token, start int, values []valueToken, score float64) domain.Candidate {
	texts := make([]string, len(values))
	boxes := make([]domain.Rect, len(values))
	end := start
	for k, v := range values {
		texts[k] = v.text
		boxes[k] = v.bbox
		end = max(end, v.index)
	}
	raw := strings.Join(texts, " ")

	loc := &domain.SourceLocation{Page: pageNo}
	if bbox, ok := domain.Envelope(boxes); ok {
		loc.BBox = &bbox
	}

	return domain.Candidate{
		Value:          raw,
		RawValue:       raw,
		Confidence:     domain.AnchorBaseWeight * score,
		Method:         domain.MethodAnchor,
		SourceLocation: loc,
		Evidence:       &domain.Evidence{Snippet: joinTokens(tokens[max(0, start-snippetTokensBefore) : end+1])},
	}
}

func joinTokens(tokens []domain.Token) string {
	texts := make([]string, len(tokens))
	for i, tok := range tokens {
		texts[i] = tok.Text
	}
	return strings.Join(texts, " ")
}
