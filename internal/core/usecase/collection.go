package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

// CollectionUseCase manages the indexed collection keyed on chunk source.
type CollectionUseCase struct {
	index ports.VectorIndex
	locks *SourceLocks
	name  string
}

func NewCollectionUseCase(index ports.VectorIndex, locks *SourceLocks, collectionName string) *CollectionUseCase {
	if locks == nil {
		locks = NewSourceLocks()
	}
	return &CollectionUseCase{index: index, locks: locks, name: collectionName}
}

func (uc *CollectionUseCase) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	if sourceID == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "delete source", errors.New("source id is required"))
	}

	unlock := uc.locks.Lock(sourceID)
	defer unlock()

	deleted, err := uc.index.DeleteBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks by source: %w", err)
	}
	log.Ctx(ctx).Info().Str("source", sourceID).Int("deleted", deleted).Msg("source_deleted")
	return deleted, nil
}

func (uc *CollectionUseCase) ClearAll(ctx context.Context) (int, error) {
	deleted, err := uc.index.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear collection: %w", err)
	}
	log.Ctx(ctx).Info().Int("deleted", deleted).Msg("collection_cleared")
	return deleted, nil
}

func (uc *CollectionUseCase) Info(ctx context.Context) (domain.CollectionInfo, error) {
	count, err := uc.index.Count(ctx)
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("count chunks: %w", err)
	}
	return domain.CollectionInfo{TotalDocuments: count, CollectionName: uc.name}, nil
}
