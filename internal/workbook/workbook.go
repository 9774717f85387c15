// Package workbook wraps a persistent spreadsheet file behind a range-based
// read/write API. The ledgers, the hidden control log, and the fixed-assets
// extract are all accessed through it; callers never touch cells directly.
package workbook

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Workbook is an exclusive, single-writer session over one spreadsheet
// file. Save is invoked once at the end of a run, never mid-run.
type Workbook struct {
	file *xlsx.File
	path string
}

// Open loads an existing workbook from disk.
func Open(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: open %s", path)
	}
	return &Workbook{file: f, path: path}, nil
}

// New creates an empty in-memory workbook that will persist to path on Save.
func New(path string) *Workbook {
	return &Workbook{file: xlsx.NewFile(), path: path}
}

// Save writes the workbook back to its file. The store either accepts the
// whole write or rejects it; there is no partial-save recovery.
func (w *Workbook) Save() error {
	if err := w.file.Save(w.path); err != nil {
		return eris.Wrapf(err, "workbook: save %s", w.path)
	}
	return nil
}

// Path returns the backing file path.
func (w *Workbook) Path() string { return w.path }

// Sheet returns the named sheet. A missing ledger sheet is a configuration
// error, not a recoverable condition.
func (w *Workbook) Sheet(name string) (*xlsx.Sheet, error) {
	sheet, ok := w.file.Sheet[name]
	if !ok {
		return nil, eris.Errorf("workbook: sheet %q not found in %s", name, w.path)
	}
	return sheet, nil
}

// AddSheet creates a new visible sheet.
func (w *Workbook) AddSheet(name string) (*xlsx.Sheet, error) {
	sheet, err := w.file.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: add sheet %q", name)
	}
	return sheet, nil
}

// GetOrCreateHiddenSheet returns the named sheet, creating it hidden with a
// KIND/KEY header row when absent. Used for the control log.
func (w *Workbook) GetOrCreateHiddenSheet(name string) (*xlsx.Sheet, error) {
	if sheet, ok := w.file.Sheet[name]; ok {
		sheet.Hidden = true
		return sheet, nil
	}
	sheet, err := w.file.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: create hidden sheet %q", name)
	}
	sheet.Cell(0, 0).SetString("KIND")
	sheet.Cell(0, 1).SetString("KEY")
	sheet.Hidden = true
	return sheet, nil
}

// ReadRange reads the rectangle [rowStart,rowEnd] x [colStart,colEnd]
// (1-based, inclusive) in one pass. Missing cells are nil; date-formatted
// cells surface as time.Time, numeric as float64, boolean as bool.
func (w *Workbook) ReadRange(sheetName string, colStart, rowStart, colEnd, rowEnd int) ([][]any, error) {
	sheet, err := w.Sheet(sheetName)
	if err != nil {
		return nil, err
	}
	if colStart < 1 || rowStart < 1 || colEnd < colStart || rowEnd < rowStart {
		return nil, eris.Errorf("workbook: invalid range %d,%d..%d,%d", colStart, rowStart, colEnd, rowEnd)
	}

	grid := make([][]any, 0, rowEnd-rowStart+1)
	for r := rowStart; r <= rowEnd; r++ {
		row := make([]any, colEnd-colStart+1)
		for c := colStart; c <= colEnd; c++ {
			row[c-colStart] = cellValue(cellAt(sheet, r-1, c-1))
		}
		grid = append(grid, row)
	}
	return grid, nil
}

// WriteRange writes one rectangular grid anchored at (colStart, rowStart),
// both 1-based. This is the store's only write primitive. A ragged grid is
// rejected before anything is written.
func (w *Workbook) WriteRange(sheetName string, colStart, rowStart int, grid [][]any) error {
	sheet, err := w.Sheet(sheetName)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return eris.New("workbook: refusing zero-height range write")
	}
	if colStart < 1 || rowStart < 1 {
		return eris.Errorf("workbook: invalid write anchor col=%d row=%d", colStart, rowStart)
	}
	width := len(grid[0])
	for i, row := range grid {
		if len(row) != width {
			return eris.Errorf("workbook: ragged grid: row %d has %d cells, want %d", i, len(row), width)
		}
	}

	for i, row := range grid {
		for j, v := range row {
			setCell(sheet.Cell(rowStart-1+i, colStart-1+j), v)
		}
	}
	return nil
}

// RowCount returns the number of populated rows in the sheet.
func (w *Workbook) RowCount(sheetName string) (int, error) {
	sheet, err := w.Sheet(sheetName)
	if err != nil {
		return 0, err
	}
	return len(sheet.Rows), nil
}

// LastNonEmptyRow scans backward from the sheet's populated ceiling and
// returns the last row (1-based) with a non-empty cell in col, or 0 when
// the column is empty. Cached used-range metadata is never trusted.
func (w *Workbook) LastNonEmptyRow(sheetName string, col int) (int, error) {
	sheet, err := w.Sheet(sheetName)
	if err != nil {
		return 0, err
	}
	for r := len(sheet.Rows) - 1; r >= 0; r-- {
		c := cellAt(sheet, r, col-1)
		if c != nil && c.Value != "" {
			return r + 1, nil
		}
	}
	return 0, nil
}

// cellAt returns the cell at 0-based (row, col) without growing the sheet,
// or nil when the cell does not exist. sheet.Cell would allocate rows on
// read, which corrupts LastNonEmptyRow scans.
func cellAt(sheet *xlsx.Sheet, row, col int) *xlsx.Cell {
	if row < 0 || row >= len(sheet.Rows) {
		return nil
	}
	r := sheet.Rows[row]
	if r == nil || col < 0 || col >= len(r.Cells) {
		return nil
	}
	return r.Cells[col]
}

func cellValue(c *xlsx.Cell) any {
	if c == nil {
		return nil
	}
	switch c.Type() {
	case xlsx.CellTypeNumeric:
		if c.IsTime() {
			if t, err := c.GetTime(false); err == nil {
				return t
			}
		}
		if f, err := c.Float(); err == nil {
			return f
		}
		return c.Value
	case xlsx.CellTypeDate:
		if t, err := c.GetTime(false); err == nil {
			return t
		}
		return c.Value
	case xlsx.CellTypeBool:
		return c.Bool()
	default:
		return c.Value
	}
}

func setCell(c *xlsx.Cell, v any) {
	switch t := v.(type) {
	case nil:
		c.SetString("")
	case string:
		c.SetString(t)
	case float64:
		c.SetFloat(t)
	case int:
		c.SetInt(t)
	case int64:
		c.SetInt64(t)
	case bool:
		c.SetBool(t)
	case time.Time:
		c.SetDate(t)
	default:
		c.SetValue(t)
	}
}
