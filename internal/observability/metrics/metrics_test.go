package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsNormalizedPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/v1/documents/a", "/v1/documents/b", "/v1/documents/info"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	byID := m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/documents/{document_id}", "404")
	if got := testutil.ToFloat64(byID); got != 2 {
		t.Fatalf("expected 2 id-path requests, got %v", got)
	}
	info := m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/documents/info", "404")
	if got := testutil.ToFloat64(info); got != 1 {
		t.Fatalf("expected info path kept distinct, got %v", got)
	}
}

func TestRecordRAGObservation(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRAGObservation("api", "rag_query", "mmr", 3, 20*time.Millisecond)
	m.RecordRAGObservation("api", "rag_query", "mmr", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.ragRequestsTotal.WithLabelValues("api", "rag_query", "mmr")); got != 2 {
		t.Fatalf("expected 2 rag requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.ragNoContextTotal.WithLabelValues("api", "rag_query")); got != 1 {
		t.Fatalf("expected 1 no-context query, got %v", got)
	}
}

func TestRecordUploadAndDeletion(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordUpload("api", "sync", 12, nil)
	m.RecordUpload("api", "sync", 0, errors.New("bad pdf"))
	m.RecordDeletion("api", "source", 4)
	m.RecordDeletion("api", "source", 0)

	if got := testutil.ToFloat64(m.uploadsTotal.WithLabelValues("api", "sync", "error")); got != 1 {
		t.Fatalf("expected 1 failed upload, got %v", got)
	}
	if got := testutil.ToFloat64(m.sourceDeletes.WithLabelValues("api", "source")); got != 4 {
		t.Fatalf("expected 4 deleted chunks, got %v", got)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.Breakers().OnStateChange("qdrant.search", "closed", "open")
	if got := testutil.ToFloat64(m.breakers.state.WithLabelValues("api", "qdrant.search")); got != 2 {
		t.Fatalf("expected open state 2, got %v", got)
	}
	m.Breakers().OnStateChange("qdrant.search", "open", "half-open")
	if got := testutil.ToFloat64(m.breakers.state.WithLabelValues("api", "qdrant.search")); got != 1 {
		t.Fatalf("expected half-open state 1, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pdfrag_resilience_breaker_transitions_total") {
		t.Fatalf("expected breaker metrics in exposition")
	}
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartDocument()
	m.FinishDocument("worker", time.Second, nil)
	m.ObserveChunks("worker", 9)
	m.ObserveQueueLag("worker", -time.Second)

	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "success")); got != 1 {
		t.Fatalf("expected 1 processed document, got %v", got)
	}
	if got := testutil.ToFloat64(m.processInFlight); got != 0 {
		t.Fatalf("expected no in-flight documents, got %v", got)
	}
}
