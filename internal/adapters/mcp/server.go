// Package mcpadapter exposes the answering pipeline as MCP tools so that
// agent frontends can call retrieval and question answering over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nadavgross/faculty-rag/internal/core/ports"
)

type Handlers struct {
	answerer ports.QuestionAnswerer
	searcher ports.SourceSearcher
}

func NewHandlers(answerer ports.QuestionAnswerer, searcher ports.SourceSearcher) *Handlers {
	return &Handlers{answerer: answerer, searcher: searcher}
}

// NewServer builds the MCP server with both tools registered.
func NewServer(answerer ports.QuestionAnswerer, searcher ports.SourceSearcher) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer("Faculty RAG", "1.0.0")
	RegisterTools(server, NewHandlers(answerer, searcher))
	return server
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func ServeStdio(server *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(server)
}

func RegisterTools(server *mcpserver.MCPServer, handlers *Handlers) {
	server.AddTool(mcp.Tool{
		Name:        "ask_faculty",
		Description: "Answer a question about the University of Haifa CS faculty, grounded in the indexed faculty site. Questions and answers are usually in Hebrew.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
			},
			Required: []string{"question"},
		},
	}, handlers.AskFaculty)

	server.AddTool(mcp.Tool{
		Name:        "search_sources",
		Description: "Run hybrid retrieval over the faculty corpus and return the top matching source chunks without generating an answer.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"k": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results to return (default: 5)",
					"default":     5,
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchSources)
}

// AskFaculty handles the ask_faculty tool.
func (h *Handlers) AskFaculty(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	answer, err := h.answerer.Ask(ctx, question, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answering failed: %v", err)), nil
	}

	responseJSON, err := json.Marshal(answer)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode answer: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// SearchSources handles the search_sources tool.
func (h *Handlers) SearchSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k := request.GetInt("k", 5)
	if k < 0 {
		return mcp.NewToolResultError("k must be a non-negative number"), nil
	}

	candidates, err := h.searcher.Search(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	responseJSON, err := json.Marshal(map[string]interface{}{
		"results": candidates,
		"count":   len(candidates),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
