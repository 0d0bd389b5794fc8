// Package detect implements the content and rate detectors feeding the
// moderation pipeline: a word-list matcher, an OCR extracted-text matcher, a
// durable duplicate-text matcher, and a sliding-window rate detector.
package detect

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Match describes where a configured term matched in some text.
type Match struct {
	Term  string
	Start int
	End   int
}

// normalize lowercases text and strips combining marks, so that folded or
// accented spellings still match the configured phrase set. This is the one
// normalization policy applied across all detectors.
func normalize(text string) string {
	// the transform chain is stateful and must not be shared across goroutines
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, strings.ToLower(text))
	if err != nil {
		return strings.ToLower(text)
	}
	return out
}

// normalizeContent is normalize plus whitespace collapsing, used for
// duplicate-content equality.
func normalizeContent(text string) string {
	return strings.Join(strings.Fields(normalize(text)), " ")
}

// wordCount counts whitespace-separated words after normalization.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
