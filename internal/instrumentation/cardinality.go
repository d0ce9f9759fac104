package instrumentation

import (
	"sort"
	"strings"
)

// Cardinality management helpers for metrics and logs.
// Recipient addresses are reduced to their domains before they are used as
// label values or written to non-audit logs.

// ExtractUserDomain extracts the domain part from an email address.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}

// RecipientDomains returns the sorted, de-duplicated domains of emails.
func RecipientDomains(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		d := ExtractUserDomain(strings.TrimSpace(e))
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// Common operation types for Google API metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationMove     = "move"
	OperationUpload   = "upload"
	OperationDownload = "download"
	OperationShare    = "share"
	OperationSend     = "send"
)
