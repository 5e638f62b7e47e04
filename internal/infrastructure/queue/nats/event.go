package nats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ingestEvent struct {
	DocumentID  string    `json:"document_id"`
	PublishedAt time.Time `json:"published_at"`
}

func encodeEvent(documentID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, errors.New("empty document id")
	}
	data, err := json.Marshal(ingestEvent{DocumentID: documentID, PublishedAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode ingest event: %w", err)
	}
	return data, nil
}

// decodeEvent also accepts a bare document id payload.
func decodeEvent(data []byte) (ingestEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ingestEvent{}, errors.New("empty ingest event")
	}
	if trimmed[0] != '{' {
		return ingestEvent{DocumentID: string(trimmed)}, nil
	}

	var event ingestEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return ingestEvent{}, fmt.Errorf("decode ingest event: %w", err)
	}
	if strings.TrimSpace(event.DocumentID) == "" {
		return ingestEvent{}, errors.New("ingest event without document id")
	}
	return event, nil
}
