package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for PDF upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor turns stored uploads and extracted pages into indexed chunks.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
	Ingest(ctx context.Context, pages []domain.PageContent, sourceID string, chunkSize, chunkOverlap int) ([]string, error)
}

// DocumentQueryService is the inbound contract for question answering.
type DocumentQueryService interface {
	Answer(ctx context.Context, question string, topK int, filter domain.SearchFilter) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// CollectionManager covers the collection lifecycle keyed on source.
type CollectionManager interface {
	DeleteSource(ctx context.Context, sourceID string) (int, error)
	ClearAll(ctx context.Context) (int, error)
	Info(ctx context.Context) (domain.CollectionInfo, error)
}
