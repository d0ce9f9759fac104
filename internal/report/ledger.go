package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/xuri/excelize/v2"
)

// ErrReportWrite wraps every failure to persist the ledger.
var ErrReportWrite = errors.New("report write failed")

// Ledger writes report rows to an xlsx workbook, appending to existing files.
type Ledger struct {
	sheet string
}

// DefaultSheet is the sheet new ledgers are written to.
const DefaultSheet = "Sheet1"

// NewLedger returns a Ledger writing to sheet. A workbook without that sheet is
// extended on its first sheet instead.
func NewLedger(sheet string) *Ledger {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &Ledger{sheet: sheet}
}

// Append adds rows below any rows already in the workbook at path, creating the
// workbook with a header row when it does not exist. It returns the number of
// data rows in the ledger afterwards.
func (l *Ledger) Append(path string, rows []Row) (int, error) {
	f, sheet, existing, err := l.open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	defer func() { _ = f.Close() }()

	current, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read %s: %w", ErrReportWrite, sheet, err)
	}
	next := len(current) + 1
	if len(current) == 0 {
		if err := setRow(f, sheet, 1, headerValues()); err != nil {
			return 0, err
		}
		next = 2
	}

	for i, row := range rows {
		if err := setRow(f, sheet, next+i, row.Values()); err != nil {
			return 0, err
		}
	}

	if existing {
		err = f.Save()
	} else {
		err = f.SaveAs(path)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to save %s: %w", ErrReportWrite, path, err)
	}
	return next - 2 + len(rows), nil
}

func (l *Ledger) open(path string) (*excelize.File, string, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		f := excelize.NewFile()
		if l.sheet != DefaultSheet {
			if err := f.SetSheetName(DefaultSheet, l.sheet); err != nil {
				_ = f.Close()
				return nil, "", false, err
			}
		}
		return f, l.sheet, false, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", false, err
	}
	return f, l.sheetIn(f), true, nil
}

// sheetIn returns the configured sheet when f has it, else f's first sheet.
func (l *Ledger) sheetIn(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 || slices.Contains(sheets, l.sheet) {
		return l.sheet
	}
	return sheets[0]
}

func setRow(f *excelize.File, sheet string, n int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%w: failed to write row %d: %w", ErrReportWrite, n, err)
	}
	return nil
}

// Read returns the data rows of the ledger at path.
func (l *Ledger) Read(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cells, err := f.GetRows(l.sheetIn(f))
	if err != nil {
		return nil, err
	}
	if len(cells) <= 1 {
		return nil, nil
	}

	rows := make([]Row, 0, len(cells)-1)
	for _, c := range cells[1:] {
		c = append(c, make([]string, len(Columns))...)
		rows = append(rows, Row{
			Subject:     c[0],
			Recipient:   c[1],
			Body:        c[2],
			Attachments: c[3],
			Emails:      c[4],
			Status:      c[5],
			Description: c[6],
			Timestamp:   c[7],
		})
	}
	return rows, nil
}

func headerValues() []interface{} {
	values := make([]interface{}, len(Columns))
	for i, c := range Columns {
		values[i] = c
	}
	return values
}
