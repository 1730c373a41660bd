package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/procurely/tendersync/internal/pipeline"
	"github.com/procurely/tendersync/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runner     Runner
	Controller *pipeline.Controller
	Store      NoticeStore
}

// NewMCPServer creates an MCP server exposing the notice cache and run
// control to assistants.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tendersync",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tendersync: UK Find a Tender procurement notices for one buyer organisation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("find_notices",
			mcp.WithDescription("Search ingested procurement notices by title or OCID."),
			mcp.WithString("query", mcp.Description("Search term matched against notice titles and OCIDs"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpFindNotices(deps),
	)

	s.AddTool(
		mcp.NewTool("run_status",
			mcp.WithDescription("Report whether an ingestion run is in progress and how the last run ended."),
		),
		mcpRunStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_now",
			mcp.WithDescription("Start an ingestion run if none is in progress."),
		),
		mcpSyncNow(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tender://recent",
			"Recent Notices",
			mcp.WithResourceDescription("Last 20 ingested procurement notices"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpFindNotices(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		notices, err := deps.Store.SearchNotices(query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(notices) == 0 {
			return mcpText("[]"), nil
		}

		views := make([]map[string]any, len(notices))
		for i, n := range notices {
			views[i] = noticeView(n)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRunStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := map[string]any{"running": deps.Controller.Running()}
		run, err := deps.Store.LatestRun()
		switch {
		case err == nil:
			status["last_run"] = runView(run)
		case errors.Is(err, storage.ErrNotFound):
			// No run yet; report only the running flag.
		default:
			return mcpError(fmt.Sprintf("reading run history: %v", err)), nil
		}

		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSyncNow(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Controller.TryStart() {
			return mcpError("a run is already in progress"), nil
		}

		go func() {
			defer deps.Controller.Finish()
			if _, err := deps.Runner.Run(context.Background()); err != nil {
				slog.Error("background run failed", "error", err)
			}
		}()

		return mcpText("run started"), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		notices, err := deps.Store.ListNotices("", 20)
		if err != nil {
			return nil, fmt.Errorf("failed to list notices: %w", err)
		}

		views := make([]map[string]any, len(notices))
		for i, n := range notices {
			views[i] = noticeView(n)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notices: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
