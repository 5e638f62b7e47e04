package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/vector"
)

const upsertBatchSize = 128

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

func WithResilienceExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, collection string, embedder ports.Embedder, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Add(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chunks))
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, point{
				ID:      chunks[i].ID,
				Vector:  vectors[i],
				Payload: chunkPayload(chunks[i]),
			})
		}

		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert"); err != nil {
			return nil, err
		}
		for _, p := range points {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// Search fetches fetchK neighbours with their vectors and reranks them
// locally by maximal marginal relevance.
func (c *Client) Search(
	ctx context.Context,
	query string,
	k, fetchK int,
	lambda float64,
	filter domain.SearchFilter,
) ([]domain.Chunk, error) {
	queryVector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := c.search(ctx, queryVector, max(fetchK, k), filter, true)
	if err != nil {
		return nil, err
	}

	candidates := make([]vector.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, vector.Candidate{
			Chunk:      chunkFromPayload(hit.ID, hit.Payload),
			Vector:     hit.Vector,
			Similarity: hit.Score,
		})
	}

	selected := vector.SelectMMR(queryVector, candidates, k, lambda)
	out := make([]domain.Chunk, 0, len(selected))
	for _, picked := range selected {
		out = append(out, picked.Chunk)
	}
	return out, nil
}

// SearchWithScore returns the k nearest chunks with cosine distance.
func (c *Client) SearchWithScore(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredDocument, error) {
	queryVector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := c.search(ctx, queryVector, k, filter, false)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredDocument, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.ScoredDocument{
			Chunk:    chunkFromPayload(hit.ID, hit.Payload),
			Distance: domain.Float64(vector.DistanceFromSimilarity(hit.Score)),
		})
	}
	return out, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	return c.count(ctx, nil)
}

func (c *Client) DeleteBySource(ctx context.Context, source string) (int, error) {
	return c.deleteMatching(ctx, sourceFilter(source))
}

// DeleteStale removes the points of source whose ids are not in keep.
func (c *Client) DeleteStale(ctx context.Context, source string, keep []string) (int, error) {
	filter := sourceFilter(source)
	if len(keep) > 0 {
		filter["must_not"] = []map[string]any{{"has_id": keep}}
	}
	return c.deleteMatching(ctx, filter)
}

func (c *Client) deleteMatching(ctx context.Context, filter map[string]any) (int, error) {
	n, err := c.count(ctx, filter)
	if err != nil {
		if domain.IsKind(err, domain.ErrCollectionMissing) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"filter": filter}, nil, "delete"); err != nil {
		return 0, err
	}
	return n, nil
}

// Clear drops the whole collection. It is recreated on the next Add.
func (c *Client) Clear(ctx context.Context) (int, error) {
	n, err := c.Count(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrCollectionMissing) {
			return 0, nil
		}
		return 0, err
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, "drop collection"); err != nil && !domain.IsKind(err, domain.ErrCollectionMissing) {
		return 0, err
	}
	c.resetEnsured()
	return n, nil
}

// Reinitialize recreates the collection. The vector size comes from the last
// ensured collection or from a sample embedding.
func (c *Client) Reinitialize(ctx context.Context) error {
	c.ensureMu.Lock()
	size := c.ensuredVectorSize
	c.ensureMu.Unlock()
	c.resetEnsured()

	if size == 0 {
		sample, err := c.embedder.EmbedQuery(ctx, "vector size")
		if err != nil {
			return fmt.Errorf("sample embedding size: %w", err)
		}
		size = len(sample)
	}
	if size == 0 {
		return errors.New("qdrant reinitialize: unknown vector size")
	}
	return c.ensureCollection(ctx, size)
}

func (c *Client) Collection() string {
	return c.collection
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

func (c *Client) search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter, withVector bool) ([]searchHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVector,
	}
	if filter.Source != "" {
		reqBody["filter"] = sourceFilter(filter.Source)
	}

	var searchResp struct {
		Result []searchHit `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}
	return searchResp.Result, nil
}

func (c *Client) count(ctx context.Context, filter map[string]any) (int, error) {
	reqBody := map[string]any{"exact": true}
	if filter != nil {
		reqBody["filter"] = filter
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, reqBody, &countResp, "count"); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.doJSON(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")
	// 409 if the collection already exists (depends on version/config).
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) resetEnsured() {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = false
}

func sourceFilter(source string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": "source",
				"match": map[string]any{
					"value": source,
				},
			},
		},
	}
}

func chunkPayload(chunk domain.Chunk) map[string]any {
	return map[string]any{
		"text":         chunk.Content,
		"source":       chunk.Source,
		"page":         chunk.Page,
		"chunk_index":  chunk.ChunkIndex,
		"total_chunks": chunk.TotalChunks,
	}
}

func chunkFromPayload(id any, payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:          fmt.Sprintf("%v", id),
		Content:     getStringPayload(payload, "text"),
		Source:      getStringPayload(payload, "source"),
		Page:        getIntPayload(payload, "page"),
		ChunkIndex:  getIntPayload(payload, "chunk_index"),
		TotalChunks: getIntPayload(payload, "total_chunks"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
