package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.PageExtractor
	builder   ports.ChunkBuilder
	index     ports.VectorIndex
	locks     *SourceLocks

	chunkSize    int
	chunkOverlap int
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.PageExtractor,
	builder ports.ChunkBuilder,
	index ports.VectorIndex,
	locks *SourceLocks,
	chunkSize, chunkOverlap int,
) *ProcessDocumentUseCase {
	if locks == nil {
		locks = NewSourceLocks()
	}
	return &ProcessDocumentUseCase{
		repo:         repo,
		storage:      storage,
		extractor:    extractor,
		builder:      builder,
		index:        index,
		locks:        locks,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, chunksCreated, err := uc.processPipeline(ctx, documentID)
	if doc != nil {
		uc.removeUpload(ctx, doc)
	}
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveIngestResult(ctx, documentID, chunksCreated); err != nil {
		return fmt.Errorf("save ingest result: %w", err)
	}
	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch document by id: %w", err)
	}

	pages, err := uc.extractor.ExtractPages(ctx, doc)
	if err != nil {
		return doc, 0, fmt.Errorf("extract pages: %w", err)
	}

	ids, err := uc.Ingest(ctx, pages, doc.Source, uc.chunkSize, uc.chunkOverlap)
	if err != nil {
		return doc, 0, err
	}
	return doc, len(ids), nil
}

// Ingest chunks pages and replaces every indexed chunk of sourceID with the
// new set. A failed write leaves the previous chunks in place. Input that
// yields no chunks is not an error and leaves the index untouched.
func (uc *ProcessDocumentUseCase) Ingest(
	ctx context.Context,
	pages []domain.PageContent,
	sourceID string,
	chunkSize, chunkOverlap int,
) ([]string, error) {
	if sourceID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest", errors.New("source id is required"))
	}

	if check := CheckText(pages); check.LikelyScanned || check.Garbled {
		log.Ctx(ctx).Warn().
			Str("source", sourceID).
			Int("avg_chars", check.AvgChars).
			Int("sampled_pages", check.SampledPages).
			Bool("likely_scanned", check.LikelyScanned).
			Bool("garbled", check.Garbled).
			Msg("pdf_text_suspect")
	}

	chunks := uc.builder.Build(pages, sourceID, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		log.Ctx(ctx).Warn().Str("source", sourceID).Int("pages", len(pages)).Msg("ingest_no_chunks")
		return []string{}, nil
	}

	unlock := uc.locks.Lock(sourceID)
	defer unlock()

	// Chunk ids are deterministic, so Add overwrites the previous version in
	// place. Stale chunks are removed only once the new set is stored.
	ids, err := uc.index.Add(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("add chunks to vector index: %w", err)
	}

	stale, err := uc.index.DeleteStale(ctx, sourceID, ids)
	if err != nil {
		return nil, fmt.Errorf("delete stale chunks: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("source", sourceID).
		Int("pages", len(pages)).
		Int("chunks", len(ids)).
		Int("stale_removed", stale).
		Msg("ingest_completed")
	return ids, nil
}

func (uc *ProcessDocumentUseCase) removeUpload(ctx context.Context, doc *domain.Document) {
	if uc.storage == nil || doc.StoragePath == "" {
		return
	}
	if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("document_id", doc.ID).Msg("upload_cleanup_failed")
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
