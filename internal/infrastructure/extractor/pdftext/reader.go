package pdftext

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docextract/internal/core/domain"
)

const (
	defaultPageHeight = 792.0
	defaultFontSize   = 10.0
)

// Layer is the text layer of one PDF page, in top-left page coordinates.
type Layer struct {
	Page domain.Page
	// Chars counts non-space characters, used to decide whether the page needs OCR.
	Chars int
}

// Read extracts word tokens from every page of a PDF. Pages are numbered from 1.
func Read(data []byte) ([]Layer, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	layers := make([]Layer, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			layers = append(layers, Layer{Page: domain.NewPage(i, nil, false)})
			continue
		}
		texts, err := pageTexts(page)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		tokens := wordsFromGlyphs(texts, i, pageHeight(page))
		layers = append(layers, Layer{Page: domain.NewPage(i, tokens, false), Chars: countChars(tokens)})
	}
	return layers, nil
}

// pageTexts guards against malformed content streams, which the pdf package reports by panicking.
func pageTexts(page pdf.Page) (texts []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed content stream: %v", r)
		}
	}()
	return page.Content().Text, nil
}

func pageHeight(page pdf.Page) float64 {
	box := page.V.Key("MediaBox")
	if box.Len() == 4 {
		if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
			return h
		}
	}
	return defaultPageHeight
}

type line struct {
	baseline float64
	glyphs   []pdf.Text
}

// wordsFromGlyphs groups glyph runs into lines by baseline, then splits each line into words on
// whitespace glyphs and horizontal gaps wider than a fraction of the font size.
func wordsFromGlyphs(texts []pdf.Text, pageNo int, height float64) []domain.Token {
	var lines []*line
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		tolerance := fontSize(t) * 0.4
		var target *line
		for _, l := range lines {
			if math.Abs(l.baseline-t.Y) <= tolerance {
				target = l
				break
			}
		}
		if target == nil {
			target = &line{baseline: t.Y}
			lines = append(lines, target)
		}
		target.glyphs = append(target.glyphs, t)
	}

	// Top of the page first: higher baseline in PDF space.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].baseline > lines[j].baseline })

	var tokens []domain.Token
	for lineID, l := range lines {
		sort.SliceStable(l.glyphs, func(i, j int) bool { return l.glyphs[i].X < l.glyphs[j].X })

		var word strings.Builder
		var box domain.Rect
		var lastRight float64
		flush := func() {
			if text := strings.TrimSpace(word.String()); text != "" {
				tokens = append(tokens, domain.Token{Text: text, BBox: box, LineID: lineID, Confidence: 1.0})
			}
			word.Reset()
		}

		for _, g := range l.glyphs {
			if strings.TrimSpace(g.S) == "" {
				flush()
				continue
			}
			if word.Len() > 0 && g.X-lastRight > fontSize(g)*0.25 {
				flush()
			}
			glyphBox := domain.Rect{
				X0:   g.X,
				Y0:   height - (g.Y + fontSize(g)),
				X1:   g.X + g.W,
				Y1:   height - g.Y,
				Page: pageNo,
			}
			if word.Len() == 0 {
				box = glyphBox
			} else {
				box = box.Union(glyphBox)
			}
			word.WriteString(g.S)
			lastRight = g.X + g.W
		}
		flush()
	}
	return tokens
}

func fontSize(t pdf.Text) float64 {
	if t.FontSize <= 0 {
		return defaultFontSize
	}
	return t.FontSize
}

func countChars(tokens []domain.Token) int {
	n := 0
	for _, tok := range tokens {
		for _, r := range tok.Text {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n
}
