// Package logging provides structured logging utilities for docdispatch.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Handler construction from configuration (text or JSON, level by name)
//   - Consistent attribute naming for runs, folders and recipients
//   - PII sanitization (email anonymization)
//
// # Usage Patterns
//
// Create a run-scoped logger and add folder context:
//
//	logger := logging.WithRun(slog.Default(), runID)
//	logger.Info("dispatching folder",
//	    logging.Folder(folder.Name),
//	    logging.Recipient(key))
//
// Sanitize recipient addresses before logging:
//
//	logger.Debug("resolved recipients", logging.Emails(to))
package logging
