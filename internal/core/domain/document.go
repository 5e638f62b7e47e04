package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the registry record of an uploaded PDF.
type Document struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	Source        string         `json:"source"`
	MimeType      string         `json:"mime_type"`
	StoragePath   string         `json:"storage_path"`
	Status        DocumentStatus `json:"status"`
	ChunksCreated int            `json:"chunks_created"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PageContent is the raw text of one extracted PDF page.
type PageContent struct {
	Text       string
	PageNumber int
	TotalPages int
}

// Chunk is the unit persisted in the vector index.
type Chunk struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Source      string `json:"source"`
	Page        int    `json:"page"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// IngestResult summarizes one processed upload.
type IngestResult struct {
	Source        string   `json:"source"`
	ChunkIDs      []string `json:"chunk_ids"`
	ChunksCreated int      `json:"chunks_created"`
	Replaced      int      `json:"replaced"`
}

type CollectionInfo struct {
	TotalDocuments int    `json:"total_documents"`
	CollectionName string `json:"collection_name"`
}
