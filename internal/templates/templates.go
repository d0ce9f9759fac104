// Package templates renders the HTML bodies of outgoing mail.
//
// Template files are html/template documents with the sprig function set.
// The placeholders {cuerpo} and {asuntos_exitosos} used by existing template
// files are accepted and mapped to {{ .Body }} and {{ .SubjectList }}.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// Default bodies used when no template file is configured.
const (
	DefaultReceiver = `<html><body>{{ .Body }}</body></html>`
	DefaultReport   = `<html><body><p>Folders dispatched in this run:</p><ul>{{ .SubjectList }}</ul>` +
		`{{ if .Failed }}<p>Failed: {{ len .Failed }}</p>{{ end }}</body></html>`
	DefaultEmpty = `<html><body><p>No case folders were found in the run of {{ .Date | date "2006-01-02 15:04:05" }}.</p></body></html>`
)

var legacyPlaceholders = strings.NewReplacer(
	"{cuerpo}", "{{ .Body }}",
	"{asuntos_exitosos}", "{{ .SubjectList }}",
)

// ReceiverData feeds the per-folder mail.
type ReceiverData struct {
	// Body is the distribution body from the recipient workbook. It is trusted HTML.
	Body    template.HTML
	Subject string
	Country string
}

// ReportData feeds the run report and empty-run mails.
type ReportData struct {
	Succeeded   []string
	Failed      []string
	SubjectList template.HTML
	Date        time.Time
}

// NewReportData builds ReportData, rendering succeeded subjects as <li> items.
func NewReportData(succeeded, failed []string, date time.Time) ReportData {
	var b strings.Builder
	for _, s := range succeeded {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(s))
		b.WriteString("</li>")
	}
	return ReportData{
		Succeeded:   succeeded,
		Failed:      failed,
		SubjectList: template.HTML(b.String()),
		Date:        date,
	}
}

// Set holds the three parsed templates.
type Set struct {
	receiver *template.Template
	report   *template.Template
	empty    *template.Template
}

// Load parses the template files. An empty path uses the built-in default.
func Load(receiverPath, reportPath, emptyPath string) (*Set, error) {
	receiver, err := parseFile("receiver", receiverPath, DefaultReceiver)
	if err != nil {
		return nil, err
	}
	report, err := parseFile("report", reportPath, DefaultReport)
	if err != nil {
		return nil, err
	}
	empty, err := parseFile("empty", emptyPath, DefaultEmpty)
	if err != nil {
		return nil, err
	}
	return &Set{receiver: receiver, report: report, empty: empty}, nil
}

// Parse builds a Set from template sources.
func Parse(receiver, report, empty string) (*Set, error) {
	s := &Set{}
	var err error
	if s.receiver, err = parse("receiver", receiver); err != nil {
		return nil, err
	}
	if s.report, err = parse("report", report); err != nil {
		return nil, err
	}
	if s.empty, err = parse("empty", empty); err != nil {
		return nil, err
	}
	return s, nil
}

func parseFile(name, path, fallback string) (*template.Template, error) {
	if path == "" {
		return parse(name, fallback)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s template %s does not exist", name, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", name, err)
	}
	return parse(name, string(data))
}

func parse(name, src string) (*template.Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.HtmlFuncMap()).
		Parse(legacyPlaceholders.Replace(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tmpl, nil
}

// Receiver renders the per-folder body.
func (s *Set) Receiver(data ReceiverData) (string, error) {
	return execute(s.receiver, data)
}

// Report renders the run report body.
func (s *Set) Report(data ReportData) (string, error) {
	return execute(s.report, data)
}

// Empty renders the empty-run notice body.
func (s *Set) Empty(data ReportData) (string, error) {
	return execute(s.empty, data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}
