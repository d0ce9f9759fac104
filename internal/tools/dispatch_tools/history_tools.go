package dispatch_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/smartbots/docdispatch/internal/history"
	"github.com/smartbots/docdispatch/internal/server"
	"github.com/smartbots/docdispatch/internal/tools/common"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type historyEntry struct {
	RunID       string    `json:"run_id"`
	Folder      string    `json:"folder"`
	Recipient   string    `json:"recipient"`
	Country     string    `json:"country,omitempty"`
	EmailsTo    string    `json:"emails_to,omitempty"`
	Attachments string    `json:"attachments,omitempty"`
	Success     bool      `json:"success"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type attempts struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

type historyResult struct {
	Count    int            `json:"count"`
	Attempts *attempts      `json:"attempts,omitempty"`
	Entries  []historyEntry `json:"entries"`
}

// registerHistoryTools registers the run history tools
func registerHistoryTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	historyTool := mcp.NewTool("run_history",
		mcp.WithDescription("Show recent dispatch outcomes, newest first"),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of entries (default: %d, max: %d)", defaultHistoryLimit, maxHistoryLimit)),
		),
		mcp.WithString("folder",
			mcp.Description("Only show executions of this case folder; also reports its attempt counts"),
		),
		mcp.WithBoolean("failed_only",
			mcp.Description("Only show failed executions (default: false)"),
		),
	)
	s.AddTool(historyTool, common.InstrumentedToolHandler("run_history", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRunHistory(ctx, request, sc)
		}))

	return nil
}

// handleRunHistory handles the run_history tool
func handleRunHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.Arguments(request)

	limit, err := common.IntArg(args, "limit", defaultHistoryLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if limit <= 0 || limit > maxHistoryLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)), nil
	}

	store, err := sc.History()
	if errors.Is(err, server.ErrHistoryDisabled) {
		return mcp.NewToolResultError("Run history is disabled. Set ledger.history_path in the settings file to record runs."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open run history: %v", err)), nil
	}

	q := history.Query{
		Folder:     common.StringArg(args, "folder"),
		FailedOnly: common.BoolArg(args, "failed_only", false),
		Limit:      limit,
	}

	entries, err := store.Recent(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query run history: %v", err)), nil
	}

	out := historyResult{
		Count:   len(entries),
		Entries: make([]historyEntry, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, historyEntry{
			RunID:       e.RunID,
			Folder:      e.Folder,
			Recipient:   e.Recipient,
			Country:     e.Country,
			EmailsTo:    e.EmailsTo,
			Attachments: e.Attachments,
			Success:     e.Success,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}

	if q.Folder != "" {
		total, failed, err := store.Attempts(ctx, q.Folder)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to count attempts: %v", err)), nil
		}
		out.Attempts = &attempts{Total: total, Failed: failed}
	}

	return jsonResult(out)
}
