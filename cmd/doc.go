// Package cmd implements the command-line interface for docdispatch.
//
// This package provides the following commands:
//   - run: Dispatch every pending case folder once and write the ledger
//   - resolve: Show how case-folder names resolve against the recipient workbook
//   - history: List past executions from the SQLite history
//   - auth: Authorize the Gmail and Drive APIs and store the token
//   - serve: Start the MCP server with the operator tools
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The run command is the default command when no subcommand is specified.
package cmd
