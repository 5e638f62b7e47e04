package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/textnorm"
)

// FormatContext renders ranked documents into the context block passed to the
// language model. Block order is rank order.
func FormatContext(docs domain.RetrievalResult) string {
	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		source := doc.Chunk.Source
		if source == "" {
			source = "Unknown"
		}

		var header strings.Builder
		fmt.Fprintf(&header, "[Document %d - Source: %s, Page: %d", i+1, source, doc.Chunk.Page)
		if doc.Distance != nil {
			fmt.Fprintf(&header, " (score: %.4f)", *doc.Distance)
		}
		header.WriteString("]")

		parts = append(parts, header.String()+"\n"+textnorm.StripLeadingJunk(doc.Chunk.Content)+"\n")
	}
	return strings.Join(parts, "\n")
}
