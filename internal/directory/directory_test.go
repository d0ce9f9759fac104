package directory

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheets map[string][][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	path := filepath.Join(t.TempDir(), "recipients.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func sampleSheets() map[string][][]interface{} {
	return map[string][][]interface{}{
		SheetDistribution: {
			{"CASOS EXPORTACION", "PAIS", "EMAILS PARA", "EMAILS COPIA", "ADJUNTOS", "ASUNTO", "CUERPO", "EJEMPLOS", "NOTAS"},
			{"Caso 1", "Test", "D1", "", "", "", "Hello", "ex", "n"},
			{"", "", "", "", "", "", "", "", ""},
			{"D2", "Chile", "", "", "", "", "<b>Hola</b>", "", ""},
		},
		SheetRecipients: {
			{"Recibidor", "Distribucion Correos", "Lista Emails"},
			{"ACME", "D1", "a@x.com; b@x.com"},
			{"ACME", "D2", "dup@x.com"},
			{"TROPME", "D2", "t@x.com"},
		},
		SheetCC: {
			{"TIPO", "CC", "LISTA EMAILS"},
			{"interno", " SANTA ELENA ", "cc1@se.com,cc2@se.com"},
		},
		SheetReport: {
			{"TIPO", "LISTA EMAILS"},
			{"reporte", "ops@se.com;boss@se.com"},
			{"reporte", "ops@se.com"},
		},
	}
}

func TestLoad(t *testing.T) {
	path := writeWorkbook(t, sampleSheets())

	var logs bytes.Buffer
	d, err := Load(path, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	acme, ok := d.Recipient("ACME")
	require.True(t, ok)
	assert.Equal(t, "D1", acme.DistributionKey)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, acme.Emails)
	assert.Contains(t, logs.String(), "duplicate recipient key")
	assert.Contains(t, logs.String(), "recipient=ACME")

	d1, ok := d.Distribution("D1")
	require.True(t, ok)
	assert.Equal(t, "Test", d1.Country)
	assert.Equal(t, "Hello", d1.Body)
	assert.Equal(t, "ex", d1.Examples)

	// falls back to the case column when the distribution column is empty
	d2, ok := d.Distribution("D2")
	require.True(t, ok)
	assert.Equal(t, "Chile", d2.Country)

	cc, ok := d.CCPolicy("SANTA ELENA")
	require.True(t, ok)
	assert.Equal(t, []string{"cc1@se.com", "cc2@se.com"}, cc.Emails)

	assert.Equal(t, []string{"ops@se.com", "boss@se.com"}, d.ReportEmails())
	assert.Len(t, d.Recipients(), 3)
}

func TestLoad_NormalizesRecipientKeys(t *testing.T) {
	sheets := sampleSheets()
	decomposed := "CAMPOSOL PERU\u0301"
	sheets[SheetRecipients] = append(sheets[SheetRecipients], []interface{}{decomposed, "D1", "c@x.com"})
	path := writeWorkbook(t, sheets)

	d, err := Load(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	m, ok := d.Recipient("CAMPOSOL PER\u00da")
	require.True(t, ok)
	assert.Equal(t, []string{"c@x.com"}, m.Emails)
}

func TestLoad_MissingSheet(t *testing.T) {
	sheets := sampleSheets()
	delete(sheets, SheetCC)
	path := writeWorkbook(t, sheets)

	_, err := Load(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"), slog.Default())
	assert.Error(t, err)
}

func TestRecipient_FirstMatchWinsAndCaseSensitive(t *testing.T) {
	d := New([]RecipientMapping{
		{Key: "ACME", DistributionKey: "first"},
		{Key: "ACME", DistributionKey: "second"},
	}, nil, nil, nil)

	m, ok := d.Recipient("ACME")
	require.True(t, ok)
	assert.Equal(t, "first", m.DistributionKey)

	_, ok = d.Recipient("acme")
	assert.False(t, ok)

	assert.Equal(t, []string{"ACME"}, d.DuplicateRecipientKeys())
}

func TestNew_CopiesInput(t *testing.T) {
	recipients := []RecipientMapping{{Key: "A"}}
	d := New(recipients, nil, nil, nil)
	recipients[0].Key = "B"

	_, ok := d.Recipient("A")
	assert.True(t, ok)

	got := d.Recipients()
	got[0].Key = "C"
	_, ok = d.Recipient("A")
	assert.True(t, ok)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "distribucion_correos", NormalizeHeader(" Distribucion Correos "))
	assert.Equal(t, "pais", NormalizeHeader("PAIS"))
}
