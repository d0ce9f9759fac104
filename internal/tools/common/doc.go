// Package common provides shared helpers for the docdispatch MCP tools:
// the instrumentation wrapper every handler is registered through and
// typed accessors for tool arguments.
package common
