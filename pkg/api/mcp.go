package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
)

const (
	mcpServerName    = "pcb-agent"
	mcpServerVersion = "0.1.0"
)

// NewMCPServer exposes each agent tool as an MCP tool with the same name,
// description and input schema.
func NewMCPServer(tools []agent.Tool, logger *slog.Logger) (*mcpserver.MCPServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	srv := mcpserver.NewMCPServer(
		mcpServerName,
		mcpServerVersion,
		mcpserver.WithToolCapabilities(true),
	)
	for _, tool := range tools {
		spec := tool.Spec()
		schema, err := json.Marshal(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("api: encode schema for %s: %w", spec.Name, err)
		}
		srv.AddTool(
			mcplib.NewToolWithRawSchema(spec.Name, spec.Description, schema),
			toolHandler(tool, logger.With("component", "mcp", "tool", spec.Name)),
		)
	}
	return srv, nil
}

func toolHandler(tool agent.Tool, logger *slog.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		resp, err := tool.Invoke(ctx, agent.ToolRequest{
			SessionID: "mcp",
			Arguments: request.GetArguments(),
		})
		if err != nil {
			logger.Warn("tool call failed", "error", err)
			return errorResult("Error: " + err.Error()), nil
		}
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{
				mcplib.TextContent{Type: "text", Text: resp.Content},
			},
		}, nil
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
