package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

func TestEventRoundTripAndLegacyPayload(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	data, err := encodeEvent("doc-1", at)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	event, err := decodeEvent(data)
	if err != nil || event.DocumentID != "doc-1" || !event.PublishedAt.Equal(at) {
		t.Fatalf("unexpected event %+v err=%v", event, err)
	}

	legacy, err := decodeEvent([]byte(" doc-2\n"))
	if err != nil || legacy.DocumentID != "doc-2" {
		t.Fatalf("bare id payload must decode, got %+v err=%v", legacy, err)
	}

	for _, bad := range []string{"", "{}", "{broken"} {
		if _, err := decodeEvent([]byte(bad)); err == nil {
			t.Fatalf("expected error for payload %q", bad)
		}
	}
	if _, err := encodeEvent(" ", at); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestDispatchPassesDocumentIDAndSwallowsHandlerError(t *testing.T) {
	q := &Queue{handlerTimeout: time.Second}
	var got string
	var hadDeadline bool
	q.dispatch(context.Background(), []byte(`{"document_id":"doc-9"}`), func(ctx context.Context, id string) error {
		got = id
		_, hadDeadline = ctx.Deadline()
		return errors.New("boom")
	})
	if got != "doc-9" || !hadDeadline {
		t.Fatalf("handler saw id=%q deadline=%v", got, hadDeadline)
	}

	called := false
	q.dispatch(context.Background(), []byte("{}"), func(context.Context, string) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler must not run for an invalid event")
	}
}

func TestClassifyPublishError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resilience.Class
	}{
		{"closed connection", fmt.Errorf("publish: %w", nats.ErrConnectionClosed), resilience.Transient},
		{"timeout", nats.ErrTimeout, resilience.Transient},
		{"payload too large", nats.ErrMaxPayload, resilience.Ignored},
		{"cancelled", context.Canceled, resilience.Ignored},
		{"unknown", errors.New("boom"), resilience.Permanent},
	}
	for _, tt := range tests {
		if got := classifyPublishError(tt.err); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}

	wrapped := resilience.Temporary("nats publish", nats.ErrTimeout, classifyPublishError)
	if !domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("timeout must surface as temporary, got %v", wrapped)
	}
	if err := resilience.Temporary("nats publish", nats.ErrBadSubject, classifyPublishError); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad subject must not be temporary")
	}
}
