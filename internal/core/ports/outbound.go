package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// DocumentRepository persists and reads upload state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestResult(ctx context.Context, id string, chunksCreated int) error
}

// ObjectStorage stores uploaded files until they are processed.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor reads per-page text out of a stored PDF.
type PageExtractor interface {
	ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.PageContent, error)
}

// ChunkBuilder converts extracted pages into index-ready chunks.
type ChunkBuilder interface {
	Build(pages []domain.PageContent, sourceID string, chunkSize, chunkOverlap int) []domain.Chunk
}

// Embedder builds vectors for chunks and query text. Only index adapters call it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores chunks and queries them by embedding similarity.
// Distances returned by SearchWithScore are non-negative, lower is closer.
type VectorIndex interface {
	Add(ctx context.Context, chunks []domain.Chunk) ([]string, error)
	Search(ctx context.Context, query string, k, fetchK int, lambda float64, filter domain.SearchFilter) ([]domain.Chunk, error)
	SearchWithScore(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredDocument, error)
	Count(ctx context.Context) (int, error)
	DeleteBySource(ctx context.Context, source string) (int, error)
	// DeleteStale removes chunks of source whose IDs are not in keep.
	DeleteStale(ctx context.Context, source string, keep []string) (int, error)
	Clear(ctx context.Context) (int, error)
}

// Reinitializer is implemented by index adapters that can recreate a missing collection.
type Reinitializer interface {
	Reinitialize(ctx context.Context) error
}

// AnswerGenerator invokes the language model.
type AnswerGenerator interface {
	Generate(ctx context.Context, systemInstructions, contextText, question string) (string, error)
}
