// Package dispatch_tools provides MCP tools for inspecting a docdispatch
// installation without running a batch.
//
// Available tools:
//   - list_pending_folders: case folders waiting under the root, with their
//     attachment size and, optionally, the resolved recipients
//   - resolve_recipient: resolve one or more folder names against the
//     recipient directory
//   - reload_directory: re-read the recipient workbook
//   - run_history: past dispatch outcomes from the history database
//
// All tools are read-only: nothing is staged, sent or archived.
package dispatch_tools
