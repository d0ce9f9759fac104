package batch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the outcome for a single item of a batch.
type Result struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Details any    `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates the results of a batch.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Names reads a tool argument that lists case folders: one name, a JSON array,
// or a string holding a JSON array. Clients differ in which they send. A name
// that merely starts with "[" is kept as a single name.
func Names(param any, field string) ([]string, error) {
	var items []any
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", field)
	case string:
		items = []any{v}
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			var list []any
			if json.Unmarshal([]byte(v), &list) == nil {
				items = list
			}
		}
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", field)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", field)
	}
	names := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		switch {
		case !ok:
			return nil, fmt.Errorf("%s[%d] must be a string", field, i)
		case s == "":
			return nil, fmt.Errorf("%s[%d] cannot be empty", field, i)
		}
		names[i] = s
	}
	return names, nil
}

// Summarize counts successes and failures.
func Summarize(results []Result) BatchResult {
	br := BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusOK {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// FormatResults renders results as indented JSON with totals.
func FormatResults(results []Result) string {
	out, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(out)
}

// Process runs fn on each id and collects one Result per id, in order.
func Process(ids []string, fn func(id string) (any, error)) []Result {
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		details, err := fn(id)
		if err != nil {
			results = append(results, Result{ID: id, Status: StatusError, Details: details, Error: err.Error()})
			continue
		}
		results = append(results, Result{ID: id, Status: StatusOK, Details: details})
	}
	return results
}
