package dispatch_tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/smartbots/docdispatch/internal/lifecycle"
	"github.com/smartbots/docdispatch/internal/resolver"
	"github.com/smartbots/docdispatch/internal/server"
)

// RegisterDispatchTools registers all docdispatch tools with the MCP server
func RegisterDispatchTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := registerFolderTools(s, sc); err != nil {
		return fmt.Errorf("failed to register folder tools: %w", err)
	}

	if err := registerHistoryTools(s, sc); err != nil {
		return fmt.Errorf("failed to register history tools: %w", err)
	}

	return nil
}

// newLifecycle builds a Lifecycle for the configured root layout.
func newLifecycle(sc *server.ServerContext) *lifecycle.Lifecycle {
	local := sc.Settings().Path.Local
	return lifecycle.New(lifecycle.Layout{
		Staging:    local.Staging,
		Archive:    local.Archive,
		ConfigName: local.ConfigName,
	}, sc.Logger())
}

// newResolver loads the recipient directory and wraps it in a Resolver.
func newResolver(sc *server.ServerContext) (*resolver.Resolver, error) {
	dir, err := sc.Directory()
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient directory: %w", err)
	}
	return resolver.New(dir, sc.Settings().Dispatch.CCGroup), nil
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
