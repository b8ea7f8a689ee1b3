package extraction

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// AnchorThreshold is the minimum similarity for a token span to count as an anchor match.
const AnchorThreshold = 0.80

// Similarity is the edit-distance ratio of a and b in [0,1]: 1 - distance/maxLen, counted in runes.
// Comparison is case-sensitive; callers lower-case both sides.
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.Distance(a, b, nil)
	return float64(maxLen-distance) / float64(maxLen)
}
