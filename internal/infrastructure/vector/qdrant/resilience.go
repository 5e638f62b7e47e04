package qdrant

import (
	"errors"
	"net/http"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

// wrapQdrantError tags a missing collection so the index decorator can
// recreate it, and retryable failures as temporary.
func wrapQdrantError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if hasStatus(err, http.StatusNotFound) {
		return domain.WrapError(domain.ErrCollectionMissing, "qdrant "+operation, err)
	}
	return resilience.Temporary("qdrant "+operation, err, resilience.ClassifyHTTP)
}

func hasStatus(err error, code int) bool {
	var statusErr *resilience.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
