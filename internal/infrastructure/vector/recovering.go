package vector

import (
	"context"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

type ReinitializingIndex interface {
	ports.VectorIndex
	ports.Reinitializer
}

// RecoveringIndex reinitializes the wrapped index and retries once when a
// call fails because the collection is missing.
type RecoveringIndex struct {
	inner ReinitializingIndex
}

func NewRecoveringIndex(inner ReinitializingIndex) *RecoveringIndex {
	return &RecoveringIndex{inner: inner}
}

func (r *RecoveringIndex) Add(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	var ids []string
	err := r.run(ctx, "vector.add", func(ctx context.Context) error {
		var err error
		ids, err = r.inner.Add(ctx, chunks)
		return err
	})
	return ids, err
}

func (r *RecoveringIndex) Search(ctx context.Context, query string, k, fetchK int, lambda float64, filter domain.SearchFilter) ([]domain.Chunk, error) {
	var out []domain.Chunk
	err := r.run(ctx, "vector.search", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Search(ctx, query, k, fetchK, lambda, filter)
		return err
	})
	return out, err
}

func (r *RecoveringIndex) SearchWithScore(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredDocument, error) {
	var out []domain.ScoredDocument
	err := r.run(ctx, "vector.search_with_score", func(ctx context.Context) error {
		var err error
		out, err = r.inner.SearchWithScore(ctx, query, k, filter)
		return err
	})
	return out, err
}

func (r *RecoveringIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := r.run(ctx, "vector.count", func(ctx context.Context) error {
		var err error
		n, err = r.inner.Count(ctx)
		return err
	})
	return n, err
}

func (r *RecoveringIndex) DeleteBySource(ctx context.Context, source string) (int, error) {
	var n int
	err := r.run(ctx, "vector.delete_by_source", func(ctx context.Context) error {
		var err error
		n, err = r.inner.DeleteBySource(ctx, source)
		return err
	})
	return n, err
}

func (r *RecoveringIndex) DeleteStale(ctx context.Context, source string, keep []string) (int, error) {
	var n int
	err := r.run(ctx, "vector.delete_stale", func(ctx context.Context) error {
		var err error
		n, err = r.inner.DeleteStale(ctx, source, keep)
		return err
	})
	return n, err
}

func (r *RecoveringIndex) Clear(ctx context.Context) (int, error) {
	return r.inner.Clear(ctx)
}

func (r *RecoveringIndex) Reinitialize(ctx context.Context) error {
	return r.inner.Reinitialize(ctx)
}

// run leaves retries and breaking to the adapter's own executor; this layer
// only recovers a missing collection.
func (r *RecoveringIndex) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	var once *resilience.Executor
	return once.Execute(ctx, operation, fn, classifyIndexError, resilience.WithRecovery(r.inner.Reinitialize))
}

func classifyIndexError(err error) resilience.Class {
	if domain.IsKind(err, domain.ErrCollectionMissing) {
		return resilience.Recoverable
	}
	return resilience.Ignored
}
