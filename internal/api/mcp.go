package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service Service
	TempDir string
}

// NewMCPServer creates an MCP server exposing the question-answering and
// ingestion tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docqa",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docqa — question answering over a local document index with web-search fallback."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question using indexed documents, falling back to web search and general knowledge."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("task_instruction", mcp.Description("Optional instruction replacing the default answering task")),
			mcp.WithString("external_context", mcp.Description("Optional context that overrides retrieval entirely")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Index a piece of text under a document name for later retrieval."),
			mcp.WithString("name", mcp.Description("Document name, including a text extension like .txt"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The text to index"), mcp.Required()),
			mcp.WithString("context", mcp.Description("Optional note stored alongside the chunks")),
		),
		mcpIngestText(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the document names currently in the index."),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("plan",
			mcp.WithDescription("Produce a numbered action plan for a request, limited to the assistant's capabilities."),
			mcp.WithString("request", mcp.Description("What to plan for"), mcp.Required()),
		),
		mcpPlan(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		var external []string
		if s := req.GetString("external_context", ""); s != "" {
			external = []string{s}
		}
		answer, err := deps.Service.SubmitQuery(ctx, query,
			req.GetString("task_instruction", ""), external)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return mcpText(answer.Text), nil
	}
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		tmp := filepath.Join(deps.TempDir, "mcp-"+uuid.New().String())
		if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
			return mcpError(fmt.Sprintf("spooling content: %v", err)), nil
		}

		res := deps.Service.IngestFile(ctx, tmp, name, req.GetString("context", ""))
		if !res.Success {
			return mcpError(res.Message), nil
		}
		return mcpText(res.Message), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sources, err := deps.Service.ListIndexedSources(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents: %v", err)), nil
		}
		if len(sources) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(sources)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding document list: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPlan(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		request, err := req.RequireString("request")
		if err != nil {
			return mcpError("request is required"), nil
		}

		plan, err := deps.Service.GeneratePlan(ctx, request)
		if err != nil {
			return mcpError(fmt.Sprintf("planning failed: %v", err)), nil
		}
		return mcpText(plan), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
