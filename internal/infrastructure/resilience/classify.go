package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

const statusBodyLimit = 2048

// StatusError is a non-2xx answer from an HTTP dependency.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

// NewStatusError captures the status and a bounded excerpt of the body.
func NewStatusError(service, operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, statusBodyLimit))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, e.Body)
}

// ClassifyStatus is the status policy shared by the HTTP adapters. Overload
// and server faults are retried; other client errors mean the request itself
// was wrong and say nothing about the dependency's health.
func ClassifyStatus(code int) Class {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return Transient
	case code == http.StatusNotImplemented:
		return Permanent
	case code >= 500:
		return Transient
	default:
		return Ignored
	}
}

// ClassifyHTTP classifies failures of a single HTTP round trip.
func ClassifyHTTP(err error) Class {
	if class, ok := classifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return Transient
	}
	return Permanent
}

// classifyCommon covers the outcomes every dependency shares.
func classifyCommon(err error) (Class, bool) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	case domain.IsKind(err, domain.ErrCollectionMissing):
		return Recoverable, true
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnsupportedInput):
		return Ignored, true
	}
	return Permanent, false
}

// Temporary tags err as domain.ErrTemporary when classify says a later call
// may succeed.
func Temporary(operation string, err error, classify Classifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || classify(err) == Transient {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
