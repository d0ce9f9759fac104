// Package batch provides helpers for tools that act on several case folders
// in one call: parsing a folder argument given as a string or an array, and
// reporting per-folder results with partial failures.
package batch
