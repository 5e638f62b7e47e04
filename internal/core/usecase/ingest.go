package usecase

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type IngestMode string

const (
	IngestSync  IngestMode = "sync"
	IngestAsync IngestMode = "async"
)

var pdfMagic = []byte("%PDF-")

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	processor ports.DocumentProcessor
	mode      IngestMode
}

// NewIngestDocumentUseCase wires uploads either to inline processing or to
// the ingestion queue. queue may be nil in sync mode.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	processor ports.DocumentProcessor,
	mode IngestMode,
) *IngestDocumentUseCase {
	if mode == "" {
		mode = IngestSync
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		processor: processor,
		mode:      mode,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, domain.WrapError(domain.ErrUnsupportedInput, "upload", fmt.Errorf("only PDF files are supported, got %q", filename))
	}

	br := bufio.NewReader(body)
	head, err := br.Peek(len(pdfMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if !bytes.Equal(head, pdfMagic) {
		return nil, domain.WrapError(domain.ErrUnsupportedInput, "upload", errors.New("file content is not a PDF"))
	}

	id := uuid.NewString()
	source := sanitizeFilename(filename)
	storageKey := fmt.Sprintf("%s_%s", id, source)
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, br); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		Source:      source,
		MimeType:    "application/pdf",
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if uc.mode == IngestAsync {
		if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("publish ingestion event: %w", err)
		}
		return doc, nil
	}

	if err := uc.processor.ProcessByID(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("process document: %w", err)
	}
	processed, err := uc.repo.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("reload document: %w", err)
	}
	return processed, nil
}

func (uc *IngestDocumentUseCase) Mode() IngestMode {
	return uc.mode
}

// SourceName is the source id a file named name is indexed under.
func SourceName(name string) string {
	return sanitizeFilename(name)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.pdf"
	}
	return base
}
