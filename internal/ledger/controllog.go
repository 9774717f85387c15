package ledger

import (
	"github.com/rotisserie/eris"

	"github.com/comfe-salud/rips-cli/internal/workbook"
)

// controlKind marks identity entries in the control log. Other kinds may be
// introduced later; replay ignores them.
const controlKind = "U"

// ControlLog is the durable record of every identity key ever accepted.
// It is replayed at run start and appended at commit time, never rewritten;
// it is the sole source of truth for cross-run identity dedupe. Callers
// thread it explicitly rather than reaching for package state.
type ControlLog struct {
	sheetName string
	keys      map[string]struct{}
	nextRow   int // 1-based append position in the hidden sheet
}

// ReplayControlLog loads the hidden control sheet (creating it when absent)
// and replays every (kind "U", key) pair into memory.
func ReplayControlLog(wb *workbook.Workbook, sheetName string) (*ControlLog, error) {
	if _, err := wb.GetOrCreateHiddenSheet(sheetName); err != nil {
		return nil, eris.Wrap(err, "controllog: open")
	}

	log := &ControlLog{sheetName: sheetName, keys: make(map[string]struct{}), nextRow: 2}

	last, err := wb.LastNonEmptyRow(sheetName, 1)
	if err != nil {
		return nil, eris.Wrap(err, "controllog: scan")
	}
	if last < 2 {
		return log, nil
	}

	grid, err := wb.ReadRange(sheetName, 1, 2, 2, last)
	if err != nil {
		return nil, eris.Wrap(err, "controllog: replay")
	}
	for _, row := range grid {
		kind, _ := row[0].(string)
		key := rawTrim(row[1])
		if kind == controlKind && key != "" {
			log.keys[key] = struct{}{}
		}
	}
	log.nextRow = last + 1
	return log, nil
}

// Has reports whether an identity key was accepted in this run or any prior
// one.
func (l *ControlLog) Has(key string) bool {
	_, ok := l.keys[key]
	return ok
}

// Len returns the number of replayed plus appended keys.
func (l *ControlLog) Len() int { return len(l.keys) }

// Append persists newly accepted identity keys as one rectangular write and
// extends the in-memory set. Appending no keys is a no-op.
func (l *ControlLog) Append(wb *workbook.Workbook, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	grid := make([][]any, 0, len(keys))
	for _, k := range keys {
		grid = append(grid, []any{controlKind, k})
	}
	if err := wb.WriteRange(l.sheetName, 1, l.nextRow, grid); err != nil {
		return eris.Wrap(err, "controllog: append")
	}
	for _, k := range keys {
		l.keys[k] = struct{}{}
	}
	l.nextRow += len(keys)
	return nil
}
