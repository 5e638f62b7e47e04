// Package chromem is an embedded, optionally persistent vector index backed
// by chromem-go. It needs no external service.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/vector"
)

type Store struct {
	db         *chromem.DB
	collection string
	embedder   ports.Embedder

	// writeMu serializes mutations that compare counts before and after.
	writeMu sync.Mutex
}

// New opens a persistent database under path, or an in-memory one when path
// is empty, and makes sure the collection exists.
func New(path, collection string, embedder ports.Embedder) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	s := &Store{db: db, collection: collection, embedder: embedder}
	if _, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc()); err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}
	return s, nil
}

func (s *Store) Add(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}
	coll, err := s.getCollection("add")
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Content,
			Metadata:  chunkMetadata(chunk),
			Embedding: vectors[i],
		})
		ids = append(ids, chunk.ID)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("chromem add documents: %w", err)
	}
	return ids, nil
}

func (s *Store) Search(
	ctx context.Context,
	query string,
	k, fetchK int,
	lambda float64,
	filter domain.SearchFilter,
) ([]domain.Chunk, error) {
	queryVector, results, err := s.query(ctx, "search", query, max(fetchK, k), filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]vector.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, vector.Candidate{
			Chunk:      chunkFromResult(r),
			Vector:     r.Embedding,
			Similarity: float64(r.Similarity),
		})
	}

	selected := vector.SelectMMR(queryVector, candidates, k, lambda)
	out := make([]domain.Chunk, 0, len(selected))
	for _, picked := range selected {
		out = append(out, picked.Chunk)
	}
	return out, nil
}

func (s *Store) SearchWithScore(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredDocument, error) {
	_, results, err := s.query(ctx, "search with score", query, k, filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredDocument, 0, len(results))
	for _, r := range results {
		out = append(out, domain.ScoredDocument{
			Chunk:    chunkFromResult(r),
			Distance: domain.Float64(vector.DistanceFromSimilarity(float64(r.Similarity))),
		})
	}
	return out, nil
}

func (s *Store) Count(context.Context) (int, error) {
	coll, err := s.getCollection("count")
	if err != nil {
		return 0, err
	}
	return coll.Count(), nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	coll, err := s.getCollection("delete")
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	before := coll.Count()
	if before == 0 {
		return 0, nil
	}
	if err := coll.Delete(ctx, map[string]string{"source": source}, nil); err != nil {
		return 0, fmt.Errorf("chromem delete by source: %w", err)
	}
	return before - coll.Count(), nil
}

// DeleteStale removes the documents of source whose ids are not in keep.
func (s *Store) DeleteStale(ctx context.Context, source string, keep []string) (int, error) {
	if len(keep) == 0 {
		return s.DeleteBySource(ctx, source)
	}
	coll, err := s.getCollection("delete stale")
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// chromem has no listing call; a filtered query over the whole
	// collection returns every document of the source.
	anchor, err := coll.GetByID(ctx, keep[0])
	if err != nil {
		return 0, fmt.Errorf("chromem get %s: %w", keep[0], err)
	}
	total := coll.Count()
	if total == 0 {
		return 0, nil
	}
	results, err := coll.QueryEmbedding(ctx, anchor.Embedding, total, map[string]string{"source": source}, nil)
	if err != nil {
		return 0, fmt.Errorf("chromem list source: %w", err)
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var stale []string
	for _, r := range results {
		if _, ok := kept[r.ID]; !ok {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := coll.Delete(ctx, nil, nil, stale...); err != nil {
		return 0, fmt.Errorf("chromem delete stale: %w", err)
	}
	return len(stale), nil
}

func (s *Store) Clear(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n := 0
	if coll := s.db.GetCollection(s.collection, s.embeddingFunc()); coll != nil {
		n = coll.Count()
	}
	if err := s.db.DeleteCollection(s.collection); err != nil {
		return 0, fmt.Errorf("chromem drop collection: %w", err)
	}
	if _, err := s.db.GetOrCreateCollection(s.collection, nil, s.embeddingFunc()); err != nil {
		return 0, fmt.Errorf("chromem recreate collection: %w", err)
	}
	log.Ctx(ctx).Info().Str("collection", s.collection).Int("deleted", n).Msg("chromem_collection_cleared")
	return n, nil
}

func (s *Store) Reinitialize(context.Context) error {
	if _, err := s.db.GetOrCreateCollection(s.collection, nil, s.embeddingFunc()); err != nil {
		return fmt.Errorf("chromem reinitialize collection: %w", err)
	}
	return nil
}

func (s *Store) Collection() string {
	return s.collection
}

func (s *Store) query(ctx context.Context, operation, query string, n int, filter domain.SearchFilter) ([]float32, []chromem.Result, error) {
	coll, err := s.getCollection(operation)
	if err != nil {
		return nil, nil, err
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}

	// chromem rejects nResults above the collection size.
	n = min(n, coll.Count())
	if n <= 0 {
		return queryVector, nil, nil
	}

	var where map[string]string
	if filter.Source != "" {
		where = map[string]string{"source": filter.Source}
	}
	results, err := coll.QueryEmbedding(ctx, queryVector, n, where, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chromem %s: %w", operation, err)
	}
	return queryVector, results, nil
}

func (s *Store) getCollection(operation string) (*chromem.Collection, error) {
	coll := s.db.GetCollection(s.collection, s.embeddingFunc())
	if coll == nil {
		return nil, domain.WrapError(domain.ErrCollectionMissing, "chromem "+operation, fmt.Errorf("collection %q does not exist", s.collection))
	}
	return coll, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func chunkMetadata(chunk domain.Chunk) map[string]string {
	return map[string]string{
		"source":       chunk.Source,
		"page":         strconv.Itoa(chunk.Page),
		"chunk_index":  strconv.Itoa(chunk.ChunkIndex),
		"total_chunks": strconv.Itoa(chunk.TotalChunks),
	}
}

func chunkFromResult(r chromem.Result) domain.Chunk {
	return domain.Chunk{
		ID:          r.ID,
		Content:     r.Content,
		Source:      r.Metadata["source"],
		Page:        atoi(r.Metadata["page"]),
		ChunkIndex:  atoi(r.Metadata["chunk_index"]),
		TotalChunks: atoi(r.Metadata["total_chunks"]),
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
