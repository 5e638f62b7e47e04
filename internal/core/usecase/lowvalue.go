package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minUsefulLength     = 200
	minDefinitionLength = 60
	headInspectRunes    = 300
	maxCommaRatio       = 0.02
	maxDigitRatio       = 0.25
	maxTableWords       = 120
)

var (
	definitionPhrases = []string{
		"is defined as",
		"refers to",
		"stands for",
		"is called",
		"is known as",
		" means ",
	}
	institutionTokens = []string{
		"openai",
		"university",
		"google",
		"microsoft",
		"institute",
		"department",
	}
)

// IsLowValue reports whether text is unlikely to help answer a question:
// short fragments, reference lists, author blocks and numeric tables.
// Short definitions are kept.
func IsLowValue(text string) bool {
	t := strings.TrimSpace(text)
	length := utf8.RuneCountInString(t)
	lower := strings.ToLower(t)

	// The definition exception only waives the length rule.
	if length < minUsefulLength && !(length >= minDefinitionLength && isDefinition(lower)) {
		return true
	}

	head := runePrefix(lower, headInspectRunes)
	if strings.Contains(head, "references") || strings.Contains(head, "bibliography") {
		return true
	}

	if ratio(strings.Count(t, ","), length) > maxCommaRatio && containsAny(head, institutionTokens) {
		return true
	}

	digits := 0
	for _, r := range t {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if ratio(digits, length) > maxDigitRatio && strings.Contains(t, "\n") && len(strings.Fields(t)) < maxTableWords {
		return true
	}
	return false
}

func isDefinition(lower string) bool {
	return containsAny(lower, definitionPhrases)
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
