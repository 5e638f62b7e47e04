package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

type queryFake struct {
	err      error
	question string
	topK     int
	filter   domain.SearchFilter
}

func (f *queryFake) Answer(_ context.Context, question string, topK int, filter domain.SearchFilter) (*domain.Answer, error) {
	f.question, f.topK, f.filter = question, topK, filter
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{
		Text:          "grounded",
		Sources:       []domain.SourceCitation{{Source: "a.pdf", Page: 2}},
		RetrievedDocs: 1,
	}, nil
}

type collectionFake struct {
	err     error
	deleted string
}

func (f *collectionFake) DeleteSource(_ context.Context, source string) (int, error) {
	f.deleted = source
	return 5, f.err
}

func (f *collectionFake) ClearAll(context.Context) (int, error) { return 0, nil }

func (f *collectionFake) Info(context.Context) (domain.CollectionInfo, error) {
	return domain.CollectionInfo{TotalDocuments: 7, CollectionName: "pdf_documents"}, f.err
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", res.Content[0])
		return ""
	}
}

func TestAskDocumentsForwardsArguments(t *testing.T) {
	query := &queryFake{}
	tools := NewTools(query, &collectionFake{})

	res, err := tools.askDocuments(context.Background(), callRequest("ask_documents", map[string]any{
		"question": "What is attention?",
		"top_k":    3,
		"source":   "a.pdf",
	}))
	if err != nil {
		t.Fatalf("askDocuments() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if query.question != "What is attention?" || query.topK != 3 || query.filter.Source != "a.pdf" {
		t.Fatalf("arguments not forwarded: %+v", query)
	}

	var answer domain.Answer
	if err := json.Unmarshal([]byte(resultText(t, res)), &answer); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if answer.Text != "grounded" || len(answer.Sources) != 1 {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestAskDocumentsRequiresQuestion(t *testing.T) {
	tools := NewTools(&queryFake{}, &collectionFake{})
	res, err := tools.askDocuments(context.Background(), callRequest("ask_documents", map[string]any{}))
	if err != nil {
		t.Fatalf("askDocuments() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestToolErrorsHideInternals(t *testing.T) {
	query := &queryFake{err: errors.New("pq: password authentication failed")}
	tools := NewTools(query, &collectionFake{})
	res, _ := tools.askDocuments(context.Background(), callRequest("ask_documents", map[string]any{"question": "What is X?"}))
	if !res.IsError || strings.Contains(resultText(t, res), "password") {
		t.Fatalf("internal error leaked: %s", resultText(t, res))
	}

	query.err = domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question too short"))
	res, _ = tools.askDocuments(context.Background(), callRequest("ask_documents", map[string]any{"question": "Hi"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "question too short") {
		t.Fatalf("validation message must reach the caller: %s", resultText(t, res))
	}
}

func TestCollectionInfoAndDeleteSource(t *testing.T) {
	collection := &collectionFake{}
	tools := NewTools(&queryFake{}, collection)

	res, err := tools.collectionInfo(context.Background(), callRequest("collection_info", nil))
	if err != nil || res.IsError {
		t.Fatalf("collectionInfo() = %v, %v", res, err)
	}
	if !strings.Contains(resultText(t, res), `"total_documents":7`) {
		t.Fatalf("unexpected info %s", resultText(t, res))
	}

	res, err = tools.deleteSource(context.Background(), callRequest("delete_source", map[string]any{"source": "a.pdf"}))
	if err != nil || res.IsError {
		t.Fatalf("deleteSource() = %v, %v", res, err)
	}
	if collection.deleted != "a.pdf" || !strings.Contains(resultText(t, res), `"deleted_chunks":5`) {
		t.Fatalf("unexpected delete result %s", resultText(t, res))
	}
}

func TestNewServerListsTools(t *testing.T) {
	s := NewTools(&queryFake{}, &collectionFake{}).NewServer()
	reply := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

	raw, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	for _, name := range []string{"ask_documents", "collection_info", "delete_source"} {
		if !strings.Contains(string(raw), `"`+name+`"`) {
			t.Fatalf("tool %q missing from %s", name, raw)
		}
	}
}
