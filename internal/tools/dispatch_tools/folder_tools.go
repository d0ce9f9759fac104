package dispatch_tools

import (
	"context"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/smartbots/docdispatch/internal/gate"
	"github.com/smartbots/docdispatch/internal/resolver"
	"github.com/smartbots/docdispatch/internal/server"
	"github.com/smartbots/docdispatch/internal/tools/batch"
	"github.com/smartbots/docdispatch/internal/tools/common"
)

// caseView is the JSON shape of a resolved distribution case.
type caseView struct {
	Recipient       string   `json:"recipient,omitempty"`
	DistributionKey string   `json:"distribution_key,omitempty"`
	Country         string   `json:"country,omitempty"`
	To              []string `json:"to,omitempty"`
	CC              []string `json:"cc,omitempty"`
}

func newCaseView(dc resolver.DistributionCase) *caseView {
	return &caseView{
		Recipient:       dc.Recipient,
		DistributionKey: dc.DistributionKey,
		Country:         dc.Country,
		To:              dc.To,
		CC:              dc.CC,
	}
}

// pendingFolder is one entry of list_pending_folders.
type pendingFolder struct {
	Name           string    `json:"name"`
	Files          []string  `json:"files"`
	SizeMB         float64   `json:"size_mb"`
	ExceedsCeiling bool      `json:"exceeds_ceiling"`
	Case           *caseView `json:"case,omitempty"`
	Error          string    `json:"error,omitempty"`
}

type pendingList struct {
	Root      string          `json:"root"`
	CeilingMB float64         `json:"ceiling_mb"`
	Total     int             `json:"total"`
	Folders   []pendingFolder `json:"folders"`
}

// registerFolderTools registers the case-folder inspection tools
func registerFolderTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listTool := mcp.NewTool("list_pending_folders",
		mcp.WithDescription("List the case folders waiting under the root directory, with file count, attachment size and resolved recipients"),
		mcp.WithBoolean("resolve",
			mcp.Description("Resolve each folder against the recipient directory (default: true)"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("list_pending_folders", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListPendingFolders(ctx, request, sc)
		}))

	resolveTool := mcp.NewTool("resolve_recipient",
		mcp.WithDescription("Resolve case folder names to their recipient, distribution and email addresses"),
		mcp.WithString("folders",
			mcp.Required(),
			mcp.Description("Folder name, or a JSON array of folder names, e.g. \"FULL SET OE1 - ACME (ETA 1)\""),
		),
	)
	s.AddTool(resolveTool, common.InstrumentedToolHandler("resolve_recipient", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleResolveRecipient(ctx, request, sc)
		}))

	reloadTool := mcp.NewTool("reload_directory",
		mcp.WithDescription("Re-read the recipient workbook and report its size and duplicate keys"),
	)
	s.AddTool(reloadTool, common.InstrumentedToolHandler("reload_directory", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReloadDirectory(ctx, request, sc)
		}))

	return nil
}

// handleListPendingFolders handles the list_pending_folders tool
func handleListPendingFolders(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.Arguments(request)
	resolve := common.BoolArg(args, "resolve", true)

	settings := sc.Settings()
	root := settings.Path.Local.Root
	lc := newLifecycle(sc)

	names, err := lc.Discover(root)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list root: %v", err)), nil
	}

	var (
		r          *resolver.Resolver
		resolveErr error
	)
	if resolve {
		r, resolveErr = newResolver(sc)
	}

	ceiling := gate.New(settings.Dispatch.CeilingMB).CeilingMB()
	out := pendingList{
		Root:      root,
		CeilingMB: ceiling,
		Total:     len(names),
		Folders:   make([]pendingFolder, 0, len(names)),
	}

	for _, name := range names {
		pf := pendingFolder{Name: name}

		cf, err := lc.Inspect(root, name)
		if err != nil {
			pf.Error = err.Error()
			out.Folders = append(out.Folders, pf)
			continue
		}
		pf.Files = cf.Files
		if pf.Files == nil {
			pf.Files = []string{}
		}

		size, err := gate.TotalSizeMB(cf.FilePaths())
		if err != nil {
			pf.Error = err.Error()
		}
		pf.SizeMB = math.Round(size*100) / 100
		pf.ExceedsCeiling = size > ceiling

		switch {
		case !resolve:
		case resolveErr != nil:
			pf.Error = resolveErr.Error()
		default:
			dc, err := r.Case(name)
			if err != nil {
				pf.Error = err.Error()
			}
			if dc.Recipient != "" {
				pf.Case = newCaseView(dc)
			}
		}

		out.Folders = append(out.Folders, pf)
	}

	return jsonResult(out)
}

// handleResolveRecipient handles the resolve_recipient tool
func handleResolveRecipient(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.Arguments(request)

	folders, err := batch.Names(args["folders"], "folders")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r, err := newResolver(sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.Process(folders, func(folder string) (any, error) {
		dc, err := r.Case(folder)
		if dc.Recipient == "" {
			return nil, err
		}
		return newCaseView(dc), err
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

// handleReloadDirectory handles the reload_directory tool
func handleReloadDirectory(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sc.ReloadDirectory()

	dir, err := sc.Directory()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reload recipient directory: %v", err)), nil
	}

	return jsonResult(struct {
		Path          string   `json:"path"`
		Recipients    int      `json:"recipients"`
		ReportEmails  []string `json:"report_emails"`
		DuplicateKeys []string `json:"duplicate_keys,omitempty"`
	}{
		Path:          sc.Settings().Path.Local.Directory,
		Recipients:    len(dir.Recipients()),
		ReportEmails:  dir.ReportEmails(),
		DuplicateKeys: dir.DuplicateRecipientKeys(),
	})
}
