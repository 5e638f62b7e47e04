// Package mcpadapter exposes question answering and collection management
// as Model Context Protocol tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

const (
	serverName    = "pdf-rag-assistant"
	serverVersion = "1.0.0"
)

type Tools struct {
	query      ports.DocumentQueryService
	collection ports.CollectionManager
}

func NewTools(query ports.DocumentQueryService, collection ports.CollectionManager) *Tools {
	return &Tools{query: query, collection: collection}
}

func (t *Tools) NewServer() *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question using only the indexed PDF documents, with page citations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question, 3 to 500 characters.")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to retrieve, 1 to 10. Omit for the default.")),
		mcp.WithString("source", mcp.Description("Restrict retrieval to one uploaded file name.")),
	), t.askDocuments)

	s.AddTool(mcp.NewTool("collection_info",
		mcp.WithDescription("Report the collection name and the number of indexed chunks."),
	), t.collectionInfo)

	s.AddTool(mcp.NewTool("delete_source",
		mcp.WithDescription("Remove every indexed chunk of one uploaded file."),
		mcp.WithString("source", mcp.Required(), mcp.Description("File name used as the chunk source.")),
	), t.deleteSource)

	return s
}

func (t *Tools) askDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := domain.SearchFilter{Source: req.GetString("source", "")}

	answer, err := t.query.Answer(ctx, question, req.GetInt("top_k", 0), filter)
	if err != nil {
		return toolError(ctx, "ask_documents", err), nil
	}
	return jsonResult(answer)
}

func (t *Tools) collectionInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := t.collection.Info(ctx)
	if err != nil {
		return toolError(ctx, "collection_info", err), nil
	}
	return jsonResult(info)
}

func (t *Tools) deleteSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deleted, err := t.collection.DeleteSource(ctx, source)
	if err != nil {
		return toolError(ctx, "delete_source", err), nil
	}
	return jsonResult(map[string]any{"source": source, "deleted_chunks": deleted})
}

// toolError reports failures inside the tool result so the calling model can
// see them. Only caller mistakes are echoed verbatim.
func toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	log.Ctx(ctx).Warn().Err(err).Str("tool", tool).Msg("mcp_tool_failed")
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrDocumentNotFound):
		return mcp.NewToolResultError(err.Error())
	case domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("the document index or language model is temporarily unavailable, retry later")
	default:
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
