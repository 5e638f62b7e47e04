package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

const (
	DefaultTopK      = 5
	DefaultMMRLambda = 0.6

	minFetchK = 20
	// maxDiversityResults caps how many MMR picks are requested before filtering.
	maxDiversityResults = 50
	dedupePrefixRunes   = 120
)

type RetrievalConfig struct {
	Strategy  domain.RetrievalStrategy
	TopK      int
	FetchK    int
	MMRLambda float64
}

// Retriever queries the vector index with the configured strategy and runs
// every candidate list through the same filter pipeline.
type Retriever struct {
	index    ports.VectorIndex
	strategy retrievalStrategy
	topK     int
	fetchK   int
}

// retrievalStrategy produces raw candidates. ranked strategies carry
// comparable distances, so their candidates are deduplicated and sorted.
type retrievalStrategy interface {
	name() domain.RetrievalStrategy
	candidates(ctx context.Context, index ports.VectorIndex, query string, fetchK int, filter domain.SearchFilter) ([]domain.ScoredDocument, error)
	ranked() bool
}

func NewRetriever(index ports.VectorIndex, cfg RetrievalConfig) (*Retriever, error) {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MMRLambda < 0 || cfg.MMRLambda > 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new retriever", fmt.Errorf("mmr lambda %v outside [0,1]", cfg.MMRLambda))
	}

	var strategy retrievalStrategy
	switch cfg.Strategy {
	case domain.StrategyMMR, "":
		strategy = mmrStrategy{lambda: cfg.MMRLambda}
	case domain.StrategySimilarity:
		strategy = similarityStrategy{}
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "new retriever", fmt.Errorf("unknown retrieval strategy %q", cfg.Strategy))
	}

	return &Retriever{
		index:    index,
		strategy: strategy,
		topK:     cfg.TopK,
		fetchK:   cfg.FetchK,
	}, nil
}

func (r *Retriever) Strategy() domain.RetrievalStrategy {
	return r.strategy.name()
}

// Retrieve returns at most topK filtered documents for query. A non-positive
// topK falls back to the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	fetchK := r.fetchPool(topK)

	candidates, err := r.strategy.candidates(ctx, r.index, query, fetchK, filter)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", r.strategy.name(), err)
	}

	result := postFilter(candidates, topK, r.strategy.ranked())
	log.Ctx(ctx).Info().
		Str("strategy", string(r.strategy.name())).
		Int("top_k", topK).
		Int("fetch_k", fetchK).
		Int("candidates", len(candidates)).
		Int("returned", len(result)).
		Str("source", filter.Source).
		Msg("retrieval_completed")
	return result, nil
}

func (r *Retriever) fetchPool(topK int) int {
	if r.fetchK > 0 {
		return max(r.fetchK, topK)
	}
	return max(minFetchK, 5*topK)
}

// postFilter drops low-value candidates, then for ranked strategies removes
// duplicates and orders by ascending distance, and finally truncates.
func postFilter(candidates []domain.ScoredDocument, topK int, ranked bool) domain.RetrievalResult {
	out := make(domain.RetrievalResult, 0, len(candidates))
	for _, candidate := range candidates {
		if IsLowValue(candidate.Chunk.Content) {
			continue
		}
		out = append(out, candidate)
	}

	if ranked {
		out = dedupe(out)
		sort.SliceStable(out, func(i, j int) bool {
			return distanceLess(out[i].Distance, out[j].Distance)
		})
	}

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

type dedupeKey struct {
	source string
	page   int
	prefix string
}

func dedupe(docs domain.RetrievalResult) domain.RetrievalResult {
	seen := make(map[dedupeKey]struct{}, len(docs))
	out := docs[:0]
	for _, doc := range docs {
		key := dedupeKey{
			source: doc.Chunk.Source,
			page:   doc.Chunk.Page,
			prefix: runePrefix(doc.Chunk.Content, dedupePrefixRunes),
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, doc)
	}
	return out
}

// distanceLess orders missing distances after present ones.
func distanceLess(a, b *float64) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

type mmrStrategy struct {
	lambda float64
}

func (mmrStrategy) name() domain.RetrievalStrategy { return domain.StrategyMMR }
func (mmrStrategy) ranked() bool                   { return false }

func (s mmrStrategy) candidates(ctx context.Context, index ports.VectorIndex, query string, fetchK int, filter domain.SearchFilter) ([]domain.ScoredDocument, error) {
	chunks, err := index.Search(ctx, query, min(fetchK, maxDiversityResults), fetchK, s.lambda, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScoredDocument, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, domain.ScoredDocument{Chunk: chunk})
	}
	return out, nil
}

type similarityStrategy struct{}

func (similarityStrategy) name() domain.RetrievalStrategy { return domain.StrategySimilarity }
func (similarityStrategy) ranked() bool                   { return true }

func (similarityStrategy) candidates(ctx context.Context, index ports.VectorIndex, query string, fetchK int, filter domain.SearchFilter) ([]domain.ScoredDocument, error) {
	return index.SearchWithScore(ctx, query, fetchK, filter)
}
