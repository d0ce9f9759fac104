package report

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// EmptyRunNotice is the report of a run that found no case folders.
const EmptyRunNotice = "No case folders were found in this run."

// TimestampLayout formats the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Columns are the ledger headers, in order.
var Columns = []string{
	"Asunto",
	"Recibidor",
	"cuerpo",
	"Adjuntos",
	"Emails Para",
	"Estado Envio",
	"Descripcion Envio",
	"Fecha Envio",
}

// Status values of the Estado Envio column.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Row is one ledger line.
type Row struct {
	Subject     string
	Recipient   string
	Body        string
	Attachments string
	Emails      string
	Status      string
	Description string
	Timestamp   string
}

// Values returns the row cells in Columns order.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.Subject, r.Recipient, r.Body, r.Attachments,
		r.Emails, r.Status, r.Description, r.Timestamp,
	}
}

// RunReport is either a notice for an empty run or a table of rows.
type RunReport struct {
	Notice string
	Rows   []Row
}

// Empty reports whether the run had nothing to process.
func (r RunReport) Empty() bool {
	return r.Notice != ""
}

// BuildReport turns records into a RunReport. No records yields the empty-run
// notice rather than a zero-row table.
func BuildReport(records []ExecutionRecord) RunReport {
	if len(records) == 0 {
		return RunReport{Notice: EmptyRunNotice}
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		status := StatusError
		if rec.Success {
			status = StatusOK
		}
		names := make([]string, len(rec.Attachments))
		for i, a := range rec.Attachments {
			names[i] = filepath.Base(a)
		}
		rows = append(rows, Row{
			Subject:     rec.Folder,
			Recipient:   rec.Case.Recipient,
			Body:        StripMarkup(rec.Case.Body),
			Attachments: strings.Join(names, ", "),
			Emails:      strings.Join(rec.Case.To, "; "),
			Status:      status,
			Description: rec.Description,
			Timestamp:   rec.Timestamp.Format(TimestampLayout),
		})
	}
	return RunReport{Rows: rows}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripMarkup removes HTML tags from s.
func StripMarkup(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

// FileName returns the ledger name for a run generated at t.
func FileName(t time.Time) string {
	return "Informe_Envio_Recibidor_" + t.Format("2006-01-02_15.04.05") + ".xlsx"
}
