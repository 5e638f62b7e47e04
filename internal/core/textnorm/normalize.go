// Package textnorm cleans text extracted from PDF pages and stored chunks.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	hyphenBreakRe      = regexp.MustCompile(`([\p{L}\p{N}_])-\n([\p{L}\p{N}_])`)
	trailingSpaceRe    = regexp.MustCompile(`[ \t]+\n`)
	newlineRunRe       = regexp.MustCompile(`\n+`)
	excessBlankRe      = regexp.MustCompile(`\n{3,}`)
	horizontalRunRe    = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunctRe = regexp.MustCompile(`\s+([.,;:!?])`)
)

// Normalize repairs PDF line-wrap artifacts while keeping paragraph breaks.
//
// "para-\ngraph" becomes "paragraph", a single newline inside a paragraph
// becomes a space, and a blank line stays a paragraph separator.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := unifyLineEndings(raw)
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = joinWrappedLines(text)
	text = excessBlankRe.ReplaceAllString(text, "\n\n")
	text = horizontalRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// StripLeadingJunk drops leading ellipses and stray dots left over from
// overlap seeding or extraction noise.
func StripLeadingJunk(text string) string {
	t := strings.TrimLeftFunc(text, unicode.IsSpace)
	for strings.HasPrefix(t, "...") || strings.HasPrefix(t, "…") || strings.HasPrefix(t, ".") {
		t = strings.TrimLeft(t, ".… ")
		t = strings.TrimLeftFunc(t, unicode.IsSpace)
	}
	return t
}

// Len counts characters, not bytes.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

func unifyLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func joinWrappedLines(s string) string {
	return newlineRunRe.ReplaceAllStringFunc(s, func(run string) string {
		if len(run) == 1 {
			return " "
		}
		return run
	})
}
