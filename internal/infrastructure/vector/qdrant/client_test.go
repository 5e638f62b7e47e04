package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

type embedderFake struct {
	dim   int
	query []float32
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out = append(out, v)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.query != nil {
		return f.query, nil
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func testChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "2b1c6c4e-52a8-5c2b-9d3a-000000000001", Content: "alpha", Source: "a.pdf", Page: 1, ChunkIndex: 0, TotalChunks: 2},
		{ID: "2b1c6c4e-52a8-5c2b-9d3a-000000000002", Content: "beta", Source: "a.pdf", Page: 1, ChunkIndex: 1, TotalChunks: 2},
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func TestAddEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var lastPoints []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			lastPoints = decodeBody(t, r)["points"].([]any)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 3})

	ids, err := client.Add(context.Background(), testChunks())
	if err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	if _, err := client.Add(context.Background(), testChunks()); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(ids) != 2 || ids[0] != testChunks()[0].ID {
		t.Fatalf("expected chunk ids returned, got %v", ids)
	}

	payload := lastPoints[1].(map[string]any)["payload"].(map[string]any)
	if payload["source"] != "a.pdf" || payload["text"] != "beta" || payload["chunk_index"].(float64) != 1 {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 2})
	_, err := client.Add(context.Background(), testChunks())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchWithScoreReturnsDistances(t *testing.T) {
	var sawFilter bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		body := decodeBody(t, r)
		_, sawFilter = body["filter"]
		if body["with_vector"] != false || body["limit"].(float64) != 4 {
			t.Errorf("unexpected search body %v", body)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.9,"payload":{"text":"first","source":"a.pdf","page":3,"chunk_index":0,"total_chunks":2}},
			{"id":"p2","score":0.4,"payload":{"text":"second","source":"a.pdf","page":4,"chunk_index":1,"total_chunks":2}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 2})
	docs, err := client.SearchWithScore(context.Background(), "q", 4, domain.SearchFilter{Source: "a.pdf"})
	if err != nil {
		t.Fatalf("SearchWithScore() error = %v", err)
	}
	if !sawFilter {
		t.Fatalf("expected source filter in request")
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].Chunk.Content != "first" || docs[0].Chunk.Page != 3 || docs[0].Chunk.ID != "p1" {
		t.Fatalf("unexpected chunk %+v", docs[0].Chunk)
	}
	if math.Abs(*docs[0].Distance-0.1) > 1e-9 || math.Abs(*docs[1].Distance-0.6) > 1e-9 {
		t.Fatalf("unexpected distances %v %v", *docs[0].Distance, *docs[1].Distance)
	}
}

func TestSearchRanksByMMR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["with_vector"] != true || body["limit"].(float64) != 20 {
			t.Errorf("unexpected search body %v", body)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"a","score":0.99,"vector":[1,0.05],"payload":{"text":"near a","source":"a.pdf","page":1}},
			{"id":"b","score":0.98,"vector":[1,0.06],"payload":{"text":"near b","source":"a.pdf","page":1}},
			{"id":"c","score":0.60,"vector":[0.6,0.8],"payload":{"text":"other","source":"b.pdf","page":2}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 2, query: []float32{1, 0}})
	chunks, err := client.Search(context.Background(), "q", 2, 20, 0.3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0].ID != "a" || chunks[1].ID != "c" {
		t.Fatalf("unexpected mmr selection %+v", chunks)
	}
}

func TestMissingCollectionIsTagged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found: Collection docs doesn't exist!"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 2})
	_, err := client.SearchWithScore(context.Background(), "q", 3, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrCollectionMissing) {
		t.Fatalf("expected collection missing, got %v", err)
	}

	if n, err := client.DeleteBySource(context.Background(), "a.pdf"); err != nil || n != 0 {
		t.Fatalf("DeleteBySource() on missing collection = %d, %v", n, err)
	}
}

func TestDeleteBySourceCountsThenDeletes(t *testing.T) {
	var deleteCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/docs/points/count":
			body := decodeBody(t, r)
			if _, ok := body["filter"]; !ok {
				t.Errorf("expected filter on count")
			}
			_, _ = w.Write([]byte(`{"result":{"count":5}}`))
		case "/collections/docs/points/delete":
			atomic.AddInt32(&deleteCalls, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 2})
	n, err := client.DeleteBySource(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("DeleteBySource() error = %v", err)
	}
	if n != 5 || atomic.LoadInt32(&deleteCalls) != 1 {
		t.Fatalf("expected 5 deleted in one call, got %d/%d", n, deleteCalls)
	}
}

func TestClearAndReinitialize(t *testing.T) {
	var dropped, created int32
	var createdSize float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/collections/docs/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":9}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&dropped, 1)
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&created, 1)
			createdSize = decodeBody(t, r)["vectors"].(map[string]any)["size"].(float64)
			_, _ = w.Write([]byte(`{"result":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 4})
	n, err := client.Clear(context.Background())
	if err != nil || n != 9 || dropped != 1 {
		t.Fatalf("Clear() = %d, %v (dropped=%d)", n, err, dropped)
	}

	if err := client.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}
	if created != 1 || createdSize != 4 {
		t.Fatalf("expected collection recreated with sampled size 4, got %d/%v", created, createdSize)
	}
}

func TestDeleteStaleExcludesKeptIDs(t *testing.T) {
	var deleteFilter map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/docs/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":2}}`))
		case "/collections/docs/points/delete":
			deleteFilter = decodeBody(t, r)["filter"].(map[string]any)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", &embedderFake{dim: 2})
	n, err := client.DeleteStale(context.Background(), "a.pdf", []string{"k1", "k2"})
	if err != nil {
		t.Fatalf("DeleteStale() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stale points, got %d", n)
	}
	mustNot, ok := deleteFilter["must_not"].([]any)
	if !ok || len(mustNot) != 1 {
		t.Fatalf("expected must_not clause, got %v", deleteFilter)
	}
	hasID := mustNot[0].(map[string]any)["has_id"].([]any)
	if len(hasID) != 2 || hasID[0] != "k1" || hasID[1] != "k2" {
		t.Fatalf("unexpected kept ids %v", hasID)
	}
}

func TestCountRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "storage busy", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"count":3}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{Retry: resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}})
	client := New(server.URL, "docs", &embedderFake{dim: 2}, WithResilienceExecutor(exec))
	n, err := client.Count(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("Count() = %d, %v", n, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}
