// Package assets runs the fixed-assets reconciliation phase: read the asset
// extract workbook, decide every row through the admission pipeline, report
// rejection reasons, and commit the accepted plan. The phase is independent
// of the batch phase; a missing extract or lookup file skips it without
// touching the batch outcome.
package assets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/comfe-salud/rips-cli/internal/admission"
	"github.com/comfe-salud/rips-cli/internal/ledger"
	"github.com/comfe-salud/rips-cli/internal/workbook"
	"github.com/comfe-salud/rips-cli/internal/writer"
)

// Asset extract geometry. The extract is a third-party export; only three of
// its columns matter here.
const (
	typeCol    = 3 // C
	docCol     = 4 // D
	serviceCol = 9 // I
)

// FindExtract returns the lexicographically first .xlsx file in dir, or ""
// when the directory holds none (phase skipped, not an error).
func FindExtract(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", eris.Wrapf(err, "assets: read dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".xlsx") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// ReadCandidates loads the asset extract's identifying columns and returns
// one candidate per populated data row. Rows where type, document, and
// service are all blank are skipped; the header row is row 1.
func ReadCandidates(path, sheet string) ([]admission.Candidate, error) {
	wb, err := workbook.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "assets: open extract %s", path)
	}

	last, err := wb.RowCount(sheet)
	if err != nil {
		return nil, err
	}
	if last < 2 {
		return nil, nil
	}

	grid, err := wb.ReadRange(sheet, typeCol, 2, serviceCol, last)
	if err != nil {
		return nil, err
	}

	var out []admission.Candidate
	for i, row := range grid {
		docType := cell(row, typeCol)
		doc := cell(row, docCol)
		service := cell(row, serviceCol)
		if blank(docType) && blank(doc) && blank(service) {
			continue
		}
		out = append(out, admission.NewCandidate(i+2, docType, doc, service))
	}
	return out, nil
}

func cell(row []any, col int) any {
	idx := col - typeCol
	if idx >= len(row) {
		return nil
	}
	return row[idx]
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// BuildPlan decides every candidate against the index snapshot. Order is
// preserved: plan rows and rejections keep the extract's row order.
func BuildPlan(cands []admission.Candidate, date time.Time, idx *ledger.Indexes, lookup admission.Lookup) ([]admission.PlanRow, []admission.Rejection) {
	var plan []admission.PlanRow
	var rejections []admission.Rejection
	for _, c := range cands {
		p, r := admission.Decide(c, date, idx, lookup)
		if p != nil {
			plan = append(plan, *p)
		} else {
			rejections = append(rejections, *r)
		}
	}
	return plan, rejections
}

// ReportReasons logs the rejection reasons, most frequent first.
func ReportReasons(rejections []admission.Rejection) {
	counts := admission.CountReasons(rejections)
	type freq struct {
		reason admission.Reason
		n      int
	}
	ordered := make([]freq, 0, len(counts))
	for reason, n := range counts {
		ordered = append(ordered, freq{reason, n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].n != ordered[j].n {
			return ordered[i].n > ordered[j].n
		}
		return ordered[i].reason < ordered[j].reason
	})
	for _, f := range ordered {
		zap.L().Info("rejection reason", zap.String("reason", string(f.reason)), zap.Int("count", f.n))
	}
}

// Commit appends the plan to the facts ledger and fills down formulas from
// the row directly above the insertion block. Returns the number of rows
// inserted and the ledger's new next free row.
func Commit(w *writer.Writer, plan []admission.PlanRow, startRow int, assetKeys map[string]struct{}, fillColumns int) (int, int, error) {
	next, err := w.AppendAssetRows(plan, startRow, assetKeys)
	if err != nil {
		return 0, startRow, err
	}
	if next == startRow {
		return 0, startRow, nil
	}
	if err := w.FillDownFormulas(startRow-1, startRow, next-1, fillColumns); err != nil {
		return next - startRow, next, err
	}
	return next - startRow, next, nil
}
