package workbook

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkbook(t *testing.T) *Workbook {
	t.Helper()
	wb := New(filepath.Join(t.TempDir(), "test.xlsx"))
	_, err := wb.AddSheet("ESTRUCTURA")
	require.NoError(t, err)
	return wb
}

func TestWriteRange_ReadRange_RoundTrip(t *testing.T) {
	wb := newTestWorkbook(t)

	grid := [][]any{
		{"CC", "123", 45000.0},
		{"TI", "456", "texto"},
	}
	require.NoError(t, wb.WriteRange("ESTRUCTURA", 2, 3, grid))

	got, err := wb.ReadRange("ESTRUCTURA", 2, 3, 4, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "CC", got[0][0])
	assert.Equal(t, "123", got[0][1])
	assert.Equal(t, "TI", got[1][0])
	assert.Equal(t, "texto", got[1][2])
}

func TestWriteRange_RejectsRaggedGrid(t *testing.T) {
	wb := newTestWorkbook(t)
	err := wb.WriteRange("ESTRUCTURA", 1, 1, [][]any{{"a", "b"}, {"c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ragged")
}

func TestWriteRange_RejectsEmptyGrid(t *testing.T) {
	wb := newTestWorkbook(t)
	require.Error(t, wb.WriteRange("ESTRUCTURA", 1, 1, nil))
}

func TestSheet_MissingIsError(t *testing.T) {
	wb := newTestWorkbook(t)
	_, err := wb.Sheet("NO_EXISTE")
	require.Error(t, err)

	_, err = wb.ReadRange("NO_EXISTE", 1, 1, 2, 2)
	require.Error(t, err)
}

func TestLastNonEmptyRow(t *testing.T) {
	wb := newTestWorkbook(t)

	last, err := wb.LastNonEmptyRow("ESTRUCTURA", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, last)

	require.NoError(t, wb.WriteRange("ESTRUCTURA", 5, 2, [][]any{{"doc1"}, {"doc2"}, {""}}))

	last, err = wb.LastNonEmptyRow("ESTRUCTURA", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, last)

	// Reading past the populated area must not grow the sheet.
	_, err = wb.ReadRange("ESTRUCTURA", 5, 1, 5, 100)
	require.NoError(t, err)
	last, err = wb.LastNonEmptyRow("ESTRUCTURA", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, last)
}

func TestGetOrCreateHiddenSheet(t *testing.T) {
	wb := newTestWorkbook(t)

	sheet, err := wb.GetOrCreateHiddenSheet("__RIPS_CONTROL__")
	require.NoError(t, err)
	assert.True(t, sheet.Hidden)
	assert.Equal(t, "KIND", sheet.Cell(0, 0).Value)
	assert.Equal(t, "KEY", sheet.Cell(0, 1).Value)

	// Second call returns the same sheet without re-adding the header.
	sheet.Cell(1, 0).SetString("U")
	again, err := wb.GetOrCreateHiddenSheet("__RIPS_CONTROL__")
	require.NoError(t, err)
	assert.Equal(t, "U", again.Cell(1, 0).Value)
}

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.xlsx")

	wb := New(path)
	_, err := wb.AddSheet("US")
	require.NoError(t, err)
	require.NoError(t, wb.WriteRange("US", 1, 2, [][]any{{"CC", "123"}}))
	require.NoError(t, wb.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.ReadRange("US", 1, 2, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "CC", got[0][0])
	assert.Equal(t, "123", got[0][1])
}

func TestWriteRange_TypedValues(t *testing.T) {
	wb := newTestWorkbook(t)
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, wb.WriteRange("ESTRUCTURA", 1, 1, [][]any{{when, 12.5, 7, true, nil}}))

	got, err := wb.ReadRange("ESTRUCTURA", 1, 1, 5, 1)
	require.NoError(t, err)

	ts, ok := got[0][0].(time.Time)
	require.True(t, ok, "expected time cell, got %T", got[0][0])
	assert.Equal(t, "2024-03-01", ts.Format("2006-01-02"))
	assert.Equal(t, 12.5, got[0][1])
	assert.Equal(t, 7.0, got[0][2])
	assert.Equal(t, true, got[0][3])
}

func TestFillDown(t *testing.T) {
	wb := newTestWorkbook(t)
	sheet, err := wb.Sheet("ESTRUCTURA")
	require.NoError(t, err)

	// Row 10: column A holds a formula, column B holds a plain value.
	sheet.Cell(9, 0).SetFormula("E10*2")
	sheet.Cell(9, 1).SetString("plain")

	require.NoError(t, wb.FillDown("ESTRUCTURA", 10, 11, 13, 5))

	assert.Equal(t, "E11*2", sheet.Cell(10, 0).Formula())
	assert.Equal(t, "E12*2", sheet.Cell(11, 0).Formula())
	assert.Equal(t, "E13*2", sheet.Cell(12, 0).Formula())
	assert.Equal(t, "", sheet.Cell(10, 1).Formula())
}

func TestFillDown_NoopWhenRangeEmpty(t *testing.T) {
	wb := newTestWorkbook(t)
	require.NoError(t, wb.FillDown("ESTRUCTURA", 10, 12, 11, 5))
}

func TestShiftFormulaRows(t *testing.T) {
	tests := []struct {
		formula string
		delta   int
		want    string
	}{
		{"E10*2", 1, "E11*2"},
		{"SUM(L2:M9)", 3, "SUM(L5:M12)"},
		{"E$2+F10", 5, "E$2+F15"},
		{"$E10", 2, "$E12"},
		{`IF(A2="X10",B2,"")`, 1, `IF(A3="X10",B3,"")`},
		{"LOG10(A1)", 1, "LOG10(A2)"},
		{"ATAN2(A1,B1)", 1, "ATAN2(A2,B2)"},
		{"E10", 0, "E10"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, shiftFormulaRows(tc.formula, tc.delta), "formula %q", tc.formula)
	}
}
