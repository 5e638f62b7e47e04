package httpadapter

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg        config.Config
	ingest     ports.DocumentIngestor
	query      ports.DocumentQueryService
	docs       ports.DocumentReader
	collection ports.CollectionManager
	metrics    *metrics.HTTPServerMetrics
	validator  *requestValidator
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	query ports.DocumentQueryService,
	docs ports.DocumentReader,
	collection ports.CollectionManager,
	opts ...RouterOption,
) *Router {
	validator, err := newRequestValidator()
	if err != nil {
		// The contract is embedded at build time.
		panic(err)
	}
	rt := &Router{
		cfg:        cfg,
		ingest:     ingest,
		query:      query,
		docs:       docs,
		collection: collection,
		validator:  validator,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/info", rt.collectionInfo)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("DELETE /v1/sources/{source}", rt.deleteSource)
	mux.HandleFunc("DELETE /v1/collection", rt.clearCollection)
	mux.HandleFunc("POST /v1/rag/query", rt.queryRAG)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	handler = rt.validator.middleware(handler)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// health reports the vector store as unavailable with 503 when it cannot be counted.
func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	info, err := rt.collection.Info(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "unhealthy",
			"timestamp":    now,
			"vector_store": "unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"timestamp":       now,
		"vector_store":    "connected",
		"document_count":  info.TotalDocuments,
		"collection_name": info.CollectionName,
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if rt.metrics != nil {
		chunks := 0
		if doc != nil {
			chunks = doc.ChunksCreated
		}
		rt.metrics.RecordUpload(serviceName, rt.cfg.IngestMode, chunks, err)
	}
	if err != nil {
		writeError(w, r, "upload document", err)
		return
	}

	if rt.cfg.IngestMode == "async" {
		writeJSON(w, http.StatusAccepted, doc)
		return
	}
	message := fmt.Sprintf("Successfully processed %s into %d chunks", doc.Filename, doc.ChunksCreated)
	if doc.ChunksCreated == 0 {
		message = fmt.Sprintf("No extractable text found in %s; the PDF may be scanned or image-only", doc.Filename)
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:        "success",
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		Source:        doc.Source,
		ChunksCreated: doc.ChunksCreated,
		Message:       message,
	})
}

type uploadResponse struct {
	Status        string `json:"status"`
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	Source        string `json:"source"`
	ChunksCreated int    `json:"chunks_created"`
	Message       string `json:"message"`
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) collectionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := rt.collection.Info(r.Context())
	if err != nil {
		writeError(w, r, "collection info", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_documents": info.TotalDocuments,
		"collection_name": info.CollectionName,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (rt *Router) deleteSource(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	deleted, err := rt.collection.DeleteSource(r.Context(), source)
	if err != nil {
		writeError(w, r, "delete source", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordDeletion(serviceName, "source", deleted)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":         source,
		"deleted_chunks": deleted,
	})
}

func (rt *Router) clearCollection(w http.ResponseWriter, r *http.Request) {
	deleted, err := rt.collection.ClearAll(r.Context())
	if err != nil {
		writeError(w, r, "clear collection", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordDeletion(serviceName, "collection", deleted)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_chunks": deleted})
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Source   string `json:"source"`
}

type queryResponse struct {
	Answer        string                  `json:"answer"`
	Sources       []domain.SourceCitation `json:"sources"`
	RetrievedDocs int                     `json:"retrieved_docs"`
	QueryTime     float64                 `json:"query_time"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	answer, err := rt.query.Answer(r.Context(), req.Question, req.TopK, domain.SearchFilter{Source: req.Source})
	if err != nil {
		writeError(w, r, "rag query", err)
		return
	}
	elapsed := time.Since(start)
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "rag_query", rt.cfg.RAGStrategy, answer.RetrievedDocs, elapsed)
	}

	sources := answer.Sources
	if sources == nil {
		sources = []domain.SourceCitation{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:        answer.Text,
		Sources:       sources,
		RetrievedDocs: answer.RetrievedDocs,
		QueryTime:     math.Round(elapsed.Seconds()*1000) / 1000,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
