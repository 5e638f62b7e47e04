package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

const (
	textCheckPages       = 3
	scannedTextThreshold = 100
)

// TextCheck summarises the extractable text on the first pages of a document.
type TextCheck struct {
	SampledPages  int
	AvgChars      int
	LikelyScanned bool
	Garbled       bool
}

// CheckText samples the first pages. Pages the extractor skipped count as
// empty, so a document of blank or image-only pages is likely scanned.
func CheckText(pages []domain.PageContent) TextCheck {
	total := len(pages)
	if total > 0 && pages[0].TotalPages > total {
		total = pages[0].TotalPages
	}
	sampled := max(min(textCheckPages, total), 1)

	chars := 0
	garbled := false
	for i, page := range pages {
		number := page.PageNumber
		if number <= 0 {
			number = i + 1
		}
		if number > sampled {
			continue
		}
		chars += utf8.RuneCountInString(page.Text)
		if strings.ContainsRune(page.Text, utf8.RuneError) {
			garbled = true
		}
	}

	avg := chars / sampled
	return TextCheck{
		SampledPages:  sampled,
		AvgChars:      avg,
		LikelyScanned: avg < scannedTextThreshold,
		Garbled:       garbled,
	}
}
