// Package pdftext reads per-page text out of stored PDF uploads.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.PageContent, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	pages, err := ReadPages(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().
		Str("document_id", doc.ID).
		Str("source", doc.Source).
		Int("pages", len(pages)).
		Msg("pdf_pages_extracted")
	return pages, nil
}

// ReadPages returns the plain text of every page that has content. Page
// numbers are 1-based. A malformed file fails as a whole.
func ReadPages(r io.ReaderAt, size int64) (pages []domain.PageContent, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = domain.WrapError(domain.ErrUnsupportedInput, "read pdf", fmt.Errorf("malformed pdf: %v", rec))
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnsupportedInput, "read pdf", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, domain.WrapError(domain.ErrUnsupportedInput, "read pdf", errors.New("pdf has no pages"))
	}

	pages = make([]domain.PageContent, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.WrapError(domain.ErrUnsupportedInput, fmt.Sprintf("read pdf page %d", i), err)
		}
		if len(bytes.TrimSpace([]byte(text))) == 0 {
			continue
		}
		pages = append(pages, domain.PageContent{
			Text:       text,
			PageNumber: i,
			TotalPages: total,
		})
	}
	return pages, nil
}
