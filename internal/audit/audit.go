// Package audit exports the per-run decision trail: one row per accepted
// plan row and one per rejection, in a BOM-prefixed CSV that spreadsheet
// tools open with correct encoding.
package audit

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/comfe-salud/rips-cli/internal/admission"
)

var header = []string{
	"status", "doc_type", "document", "date", "code", "homologated_name",
	"base_l", "base_m", "base_row", "service", "reason", "detail", "source_row",
}

// WriteCSV writes the audit export. Plan rows carry status OK with empty
// reason columns; rejections carry status NO with empty business columns.
func WriteCSV(path string, plan []admission.PlanRow, rejections []admission.Rejection) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "audit: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.WriteString("\uFEFF"); err != nil {
		return eris.Wrap(err, "audit: write BOM")
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "audit: write header")
	}

	for _, p := range plan {
		row := []string{
			"OK", p.DocType, p.Doc, p.Date.Format("2006-01-02"), p.Code, p.Name,
			p.BaseL, p.BaseM, strconv.Itoa(p.BaseRow), p.ServiceRaw, "", "", strconv.Itoa(p.Row),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "audit: write plan row")
		}
	}
	for _, r := range rejections {
		row := []string{
			"NO", r.DocType, r.Doc, "", "", "",
			"", "", "", r.Service, string(r.Reason), r.Detail, strconv.Itoa(r.Row),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "audit: write rejection row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "audit: flush")
	}
	return nil
}
