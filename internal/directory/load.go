package directory

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/logging"
)

// Sheet names of the recipient workbook.
const (
	SheetDistribution = "DISTRIBUCION CORREOS"
	SheetRecipients   = "RECIBIDORES EMAILS"
	SheetCC           = "RESUMEN CC"
	SheetReport       = "EMAIL REPORTE"
)

// Load reads the recipient workbook at path. Duplicate recipient keys are kept
// (first one wins on lookup) and reported as warnings on logger.
func Load(path string, logger *slog.Logger) (*Directory, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	distRows, err := readSheet(f, SheetDistribution)
	if err != nil {
		return nil, err
	}
	recipientRows, err := readSheet(f, SheetRecipients)
	if err != nil {
		return nil, err
	}
	ccRows, err := readSheet(f, SheetCC)
	if err != nil {
		return nil, err
	}
	reportRows, err := readSheet(f, SheetReport)
	if err != nil {
		return nil, err
	}

	distributions := make([]Distribution, 0, len(distRows))
	for _, row := range distRows {
		key := row["emails_para"]
		if key == "" {
			key = row["casos_exportacion"]
		}
		distributions = append(distributions, Distribution{
			Key:      key,
			Country:  row["pais"],
			Body:     row["cuerpo"],
			Examples: row["ejemplos"],
			Notes:    row["notas"],
		})
	}

	// Folder names are NFC-normalised before lookup, so keys are too.
	recipients := make([]RecipientMapping, 0, len(recipientRows))
	for _, row := range recipientRows {
		recipients = append(recipients, RecipientMapping{
			Key:             norm.NFC.String(row["recibidor"]),
			DistributionKey: row["distribucion_correos"],
			Emails:          config.SplitList(row["lista_emails"]),
		})
	}

	cc := make([]CCPolicy, 0, len(ccRows))
	for _, row := range ccRows {
		cc = append(cc, CCPolicy{
			Type:   row["tipo"],
			Name:   row["cc"],
			Emails: config.SplitList(row["lista_emails"]),
		})
	}

	var report []string
	for _, row := range reportRows {
		for _, e := range config.SplitList(row["lista_emails"]) {
			if !slices.Contains(report, e) {
				report = append(report, e)
			}
		}
	}

	d := New(recipients, distributions, cc, report)
	for _, key := range d.DuplicateRecipientKeys() {
		logger.Warn("duplicate recipient key in workbook, first entry wins",
			logging.Recipient(key),
			logging.Path(path))
	}
	return d, nil
}

// readSheet returns the data rows of sheet as maps keyed by normalized header.
// Blank rows are skipped.
func readSheet(f *excelize.File, sheet string) ([]map[string]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = NormalizeHeader(h)
	}

	var out []map[string]string
	for _, cells := range rows[1:] {
		row := make(map[string]string, len(header))
		blank := true
		for i, key := range header {
			if key == "" || i >= len(cells) {
				continue
			}
			v := strings.TrimSpace(cells[i])
			if v != "" {
				blank = false
			}
			row[key] = v
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out, nil
}

// NormalizeHeader lowercases a column header and replaces spaces with underscores.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}
