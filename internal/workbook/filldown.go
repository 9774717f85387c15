package workbook

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// cellRef matches A1-style references; the optional $ before the row marks
// an absolute row that must not shift.
var cellRef = regexp.MustCompile(`(\$?[A-Za-z]{1,3})(\$?)(\d+)`)

// FillDown copies every formula found in refRow (1-based) into the same
// column of rows [firstRow, lastRow], shifting relative row references by
// the per-target delta. Columns holding plain values in refRow are left
// untouched. No-op when firstRow > lastRow.
func (w *Workbook) FillDown(sheetName string, refRow, firstRow, lastRow, maxCols int) error {
	if firstRow > lastRow {
		return nil
	}
	sheet, err := w.Sheet(sheetName)
	if err != nil {
		return err
	}
	if refRow < 1 {
		return eris.Errorf("workbook: invalid fill-down reference row %d", refRow)
	}

	for col := 0; col < maxCols; col++ {
		ref := cellAt(sheet, refRow-1, col)
		if ref == nil {
			continue
		}
		formula := ref.Formula()
		if formula == "" {
			continue
		}
		for r := firstRow; r <= lastRow; r++ {
			sheet.Cell(r-1, col).SetFormula(shiftFormulaRows(formula, r-refRow))
		}
	}
	return nil
}

// shiftFormulaRows rewrites relative row numbers in an A1-style formula by
// delta. Absolute rows ($) and text inside double-quoted literals are
// preserved.
func shiftFormulaRows(formula string, delta int) string {
	if delta == 0 {
		return formula
	}

	// Quoted string literals alternate with formula text; only the
	// formula segments (even indexes) are rewritten.
	parts := strings.Split(formula, `"`)
	for i := 0; i < len(parts); i += 2 {
		parts[i] = shiftSegmentRows(parts[i], delta)
	}
	return strings.Join(parts, `"`)
}

func shiftSegmentRows(seg string, delta int) string {
	matches := cellRef.FindAllStringSubmatchIndex(seg, -1)
	if len(matches) == 0 {
		return seg
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(seg[last:start])
		last = end
		// Digit-suffixed function names (LOG10, ATAN2) look like cell
		// references; the opening paren right after tells them apart.
		if end < len(seg) && seg[end] == '(' {
			b.WriteString(seg[start:end])
			continue
		}
		col, rowAbs, digits := seg[m[2]:m[3]], seg[m[4]:m[5]], seg[m[6]:m[7]]
		row, err := strconv.Atoi(digits)
		if rowAbs == "$" || err != nil || row+delta < 1 {
			b.WriteString(seg[start:end])
			continue
		}
		b.WriteString(col)
		b.WriteString(strconv.Itoa(row + delta))
	}
	b.WriteString(seg[last:])
	return b.String()
}
