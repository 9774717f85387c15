// Package writer turns ordered row lists into minimal rectangular range
// writes against the ledgers. It is the only component that creates ledger
// rows, and its commit step is the only mutator of the in-memory indexes.
package writer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/comfe-salud/rips-cli/internal/admission"
	"github.com/comfe-salud/rips-cli/internal/canon"
	"github.com/comfe-salud/rips-cli/internal/ledger"
	"github.com/comfe-salud/rips-cli/internal/workbook"
)

// Writer appends rows to the facts and subjects ledgers of one workbook.
// Row numbers handed to it are monotonically non-decreasing for the life of
// a run; callers thread the next-free-row value forward themselves.
type Writer struct {
	wb       *workbook.Workbook
	facts    string
	subjects string
}

// New binds a writer to the ledger sheets.
func New(wb *workbook.Workbook, factsSheet, subjectsSheet string) *Writer {
	return &Writer{wb: wb, facts: factsSheet, subjects: subjectsSheet}
}

// AppendFactRows writes fixed-width batch rows (span E..L) starting at
// startRow and returns the new next-free row. An empty list returns
// startRow untouched without a store write: a zero-height range write is
// rejected by the store.
func (w *Writer) AppendFactRows(rows [][]any, startRow int) (int, error) {
	if len(rows) == 0 {
		return startRow, nil
	}
	if err := w.wb.WriteRange(w.facts, ledger.FactBatchStartCol, startRow, rows); err != nil {
		return startRow, eris.Wrap(err, "writer: append fact rows")
	}
	return startRow + len(rows), nil
}

// AppendIdentityRows filters candidate subject rows against the identity set
// (which carries both this run's keys and prior runs' via the control log),
// silently dropping already-known identities, then writes the survivors as
// one range and durably extends both the set and the control log.
func (w *Writer) AppendIdentityRows(rows [][]any, startRow int, identity map[string]struct{}, clog *ledger.ControlLog) (int, error) {
	var accepted [][]any
	var newKeys []string

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		docType := rawString(row[0])
		doc := canon.Document(row[1])
		if docType == "" || doc == "" {
			continue
		}
		key := ledger.IdentityKey(docType, doc)
		if _, seen := identity[key]; seen {
			continue
		}
		if clog.Has(key) {
			continue
		}

		shaped := make([]any, ledger.SubjectWidth)
		for i := range shaped {
			shaped[i] = ""
		}
		copy(shaped, row[:min(len(row), ledger.SubjectWidth)])
		shaped[1] = doc

		accepted = append(accepted, shaped)
		identity[key] = struct{}{}
		newKeys = append(newKeys, key)
	}

	if len(accepted) == 0 {
		return startRow, nil
	}
	if err := w.wb.WriteRange(w.subjects, ledger.SubjectTypeCol, startRow, accepted); err != nil {
		return startRow, eris.Wrap(err, "writer: append identity rows")
	}
	if err := clog.Append(w.wb, newKeys); err != nil {
		return startRow, eris.Wrap(err, "writer: persist identity keys")
	}

	zap.L().Debug("identity rows appended",
		zap.Int("written", len(accepted)),
		zap.Int("skipped", len(rows)-len(accepted)),
	)
	return startRow + len(accepted), nil
}

// AppendAssetRows commits plan rows to the facts ledger (span D..M). This is
// the second dedupe filter: the pipeline is a pure decision function, so two
// same-key candidates in one run both pass admission; the commit here drops
// the later one and extends the dedupe set.
func (w *Writer) AppendAssetRows(plan []admission.PlanRow, startRow int, assetKeys map[string]struct{}) (int, error) {
	var grid [][]any
	for _, p := range plan {
		key := ledger.AssetKey(p.Doc, p.Code, p.Date.Format("2006-01-02"))
		if _, seen := assetKeys[key]; seen {
			zap.L().Warn("within-run duplicate dropped at commit", zap.String("key", key))
			continue
		}

		row := make([]any, ledger.AssetWidth)
		for i := range row {
			row[i] = ""
		}
		row[ledger.FactTypeCol-ledger.AssetStartCol] = p.DocType
		row[ledger.FactDocCol-ledger.AssetStartCol] = p.Doc
		row[ledger.FactDateCol-ledger.AssetStartCol] = p.Date.Format("2006-01-02")
		row[ledger.FactCodeCol-ledger.AssetStartCol] = p.Code
		row[ledger.FactNameCol-ledger.AssetStartCol] = p.Name
		row[ledger.FactBaseLCol-ledger.AssetStartCol] = p.BaseL
		row[ledger.FactBaseMCol-ledger.AssetStartCol] = p.BaseM

		grid = append(grid, row)
		assetKeys[key] = struct{}{}
	}

	if len(grid) == 0 {
		return startRow, nil
	}
	if err := w.wb.WriteRange(w.facts, ledger.AssetStartCol, startRow, grid); err != nil {
		return startRow, eris.Wrap(err, "writer: append asset rows")
	}
	return startRow + len(grid), nil
}

// FillDownFormulas propagates the formulas of refRow on the facts ledger
// into [firstRow, lastRow]; relative references re-anchor per target row.
func (w *Writer) FillDownFormulas(refRow, firstRow, lastRow, maxCols int) error {
	if err := w.wb.FillDown(w.facts, refRow, firstRow, lastRow, maxCols); err != nil {
		return eris.Wrap(err, "writer: fill down formulas")
	}
	return nil
}

func rawString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
