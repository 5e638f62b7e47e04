package chunking

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/textnorm"
)

var chunkIDNamespace = uuid.MustParse("8f0c6f0e-3a5b-4d5e-9a1c-2b7d4e6f8a10")

// Builder turns extracted PDF pages into chunks with positional metadata.
type Builder struct {
	MinPageLength  int
	MinChunkLength int
}

func NewBuilder() *Builder {
	return &Builder{
		MinPageLength:  MinPageLength,
		MinChunkLength: MinChunkLength,
	}
}

func (b *Builder) Build(pages []domain.PageContent, sourceID string, chunkSize, chunkOverlap int) []domain.Chunk {
	packer := NewPacker(chunkSize, chunkOverlap)
	packer.MinLength = b.MinChunkLength

	out := make([]domain.Chunk, 0, len(pages))
	skippedPages := 0
	for _, page := range pages {
		cleaned := textnorm.Normalize(page.Text)
		if textnorm.Len(cleaned) < b.MinPageLength {
			skippedPages++
			continue
		}

		packed := packer.Pack(cleaned)
		for i, content := range packed {
			if textnorm.Len(content) < b.MinChunkLength {
				continue
			}
			out = append(out, domain.Chunk{
				ID:          ChunkID(sourceID, page.PageNumber, i),
				Content:     content,
				Source:      sourceID,
				Page:        page.PageNumber,
				ChunkIndex:  i,
				TotalChunks: len(packed),
			})
		}
	}

	log.Debug().
		Str("source", sourceID).
		Int("pages", len(pages)).
		Int("skipped_pages", skippedPages).
		Int("chunks", len(out)).
		Msg("chunks_built")
	return out
}

// ChunkID is stable for a given source, page and chunk position.
func ChunkID(sourceID string, page, chunkIndex int) string {
	return uuid.NewSHA1(chunkIDNamespace, []byte(fmt.Sprintf("%s|%d|%d", sourceID, page, chunkIndex))).String()
}
