package textnorm

import (
	"strings"
	"unicode"
)

const DefaultPreviewChars = 450

// Preview renders stored chunk text for display next to an answer.
// The result is cut at maxChars without splitting a word and ends with "…"
// only when something was cut.
func Preview(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultPreviewChars
	}

	raw := StripLeadingJunk(text)
	raw = unifyLineEndings(raw)
	raw = excessBlankRe.ReplaceAllString(raw, "\n\n")
	raw = joinWrappedLines(raw)
	raw = spaceBeforePunctRe.ReplaceAllString(raw, "$1")
	raw = horizontalRunRe.ReplaceAllString(raw, " ")
	raw = strings.TrimSpace(raw)

	runes := []rune(raw)
	if len(runes) <= maxChars {
		return raw
	}

	cut := runes[:maxChars]
	if maxChars > 50 && !unicode.IsSpace(runes[maxChars]) {
		if idx := lastSpace(cut); idx > 0 {
			cut = cut[:idx]
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "…"
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
