// Package server provides the MCP server context and the HTTP side servers
// used by the docdispatch serve command.
//
// ServerContext carries the settings, the recipient directory and the run
// history to every tool handler. The directory workbook and the SQLite history
// are opened lazily, so a server started before the files exist still answers
// the tools that do not need them.
//
// For the streamable-http transport, HealthChecker exposes /healthz and
// /readyz next to the MCP endpoint, and MetricsServer serves the Prometheus
// registry of the instrumentation provider on a dedicated port.
package server
