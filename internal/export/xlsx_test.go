package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWorkbook(t *testing.T) {
	data, err := Workbook(Sheet{
		Name:         "Journal",
		Headers:      []string{"Date", "Libellé", "Montant"},
		Rows:         [][]any{{time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "Encaissement", int64(12345)}},
		CentsColumns: []int{2},
	}, Sheet{Name: "Totaux", Headers: []string{"Compte"}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Journal", "Totaux"}, f.GetSheetList())

	rows, err := f.GetRows("Journal")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Date", "Libellé", "Montant"}, rows[0])
	assert.Equal(t, "2026-01-05", rows[1][0])

	raw, err := f.GetCellValue("Journal", "C2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "123.45", raw)
}
