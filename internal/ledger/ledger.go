// Package ledger builds the in-memory indexes the admission pipeline reads:
// the cross-run identity set, the first-occurrence base-value index, and the
// asset dedupe set. Each index is one full range scan of a ledger sheet,
// rebuilt at run start and extended in memory as the run appends rows.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/comfe-salud/rips-cli/internal/canon"
	"github.com/comfe-salud/rips-cli/internal/workbook"
)

// Ledger geometry (1-based columns). The subjects ledger keys identities in
// A/B; the facts ledger keys documents in E with the record date in F, the
// record code in H, the homologated name in K, and the derived base pair in
// L/M. Batch rows span E..L, asset rows D..M, identity rows A..N.
const (
	SubjectTypeCol = 1  // A
	SubjectDocCol  = 2  // B
	SubjectWidth   = 14 // A..N

	FactTypeCol  = 4  // D
	FactDocCol   = 5  // E
	FactDateCol  = 6  // F
	FactCodeCol  = 8  // H
	FactNameCol  = 11 // K
	FactBaseLCol = 12 // L
	FactBaseMCol = 13 // M

	FactBatchStartCol = 5  // E
	FactBatchWidth    = 8  // E..L
	AssetStartCol     = 4  // D
	AssetWidth        = 10 // D..M
)

// BaseValue is the derived pair inherited from a document's first facts row.
type BaseValue struct {
	Row int
	L   string
	M   string
}

// Indexes is the snapshot the admission pipeline decides against. The
// writer's commit step is the only mutator.
type Indexes struct {
	Identity  map[string]struct{}
	Base      map[string]BaseValue
	AssetKeys map[string]struct{}
}

// IdentityKey joins a document type and canonical document into the
// subjects-ledger dedupe key.
func IdentityKey(docType, doc string) string {
	return docType + "|" + doc
}

// AssetKey joins document, code, and date into the asset dedupe key.
func AssetKey(doc, code, date string) string {
	return doc + "|" + code + "|" + date
}

// Builder scans a workbook's ledger sheets into indexes.
type Builder struct {
	wb       *workbook.Workbook
	facts    string
	subjects string
	minRow   int
}

// NewBuilder binds a builder to the ledger sheets. minRow floors NextFreeRow:
// row 1 holds headers and row 2 may hold a title band.
func NewBuilder(wb *workbook.Workbook, factsSheet, subjectsSheet string, minRow int) *Builder {
	return &Builder{wb: wb, facts: factsSheet, subjects: subjectsSheet, minRow: minRow}
}

// LoadAll builds all three indexes in one pass per ledger.
func (b *Builder) LoadAll() (*Indexes, error) {
	identity, err := b.LoadIdentitySet()
	if err != nil {
		return nil, err
	}
	base, assetKeys, err := b.loadFactIndexes()
	if err != nil {
		return nil, err
	}
	return &Indexes{Identity: identity, Base: base, AssetKeys: assetKeys}, nil
}

// LoadIdentitySet scans the subjects ledger's type and document columns and
// returns the set of "type|document" keys. Rows with an empty type or an
// undecodable document are skipped.
func (b *Builder) LoadIdentitySet() (map[string]struct{}, error) {
	out := make(map[string]struct{})

	last, err := b.wb.LastNonEmptyRow(b.subjects, SubjectDocCol)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: scan subjects ledger")
	}
	if last < 2 {
		return out, nil
	}

	grid, err := b.wb.ReadRange(b.subjects, SubjectTypeCol, 2, SubjectDocCol, last)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: read subjects ledger")
	}
	for _, row := range grid {
		docType := rawTrim(row[0])
		doc := canon.Document(row[1])
		if docType == "" || doc == "" {
			continue
		}
		out[IdentityKey(docType, doc)] = struct{}{}
	}
	return out, nil
}

// LoadBaseValueIndex scans the facts ledger and keeps, per document, the
// derived-value pair from its first occurrence (lowest row).
func (b *Builder) LoadBaseValueIndex() (map[string]BaseValue, error) {
	base, _, err := b.loadFactIndexes()
	return base, err
}

// LoadAssetDedupeSet scans the facts ledger and returns the set of
// "document|code|date" keys; a row contributes only when all three members
// canonicalize non-empty.
func (b *Builder) LoadAssetDedupeSet() (map[string]struct{}, error) {
	_, keys, err := b.loadFactIndexes()
	return keys, err
}

// loadFactIndexes walks the facts ledger once and derives both the
// base-value index and the asset dedupe set from the same scan.
func (b *Builder) loadFactIndexes() (map[string]BaseValue, map[string]struct{}, error) {
	base := make(map[string]BaseValue)
	keys := make(map[string]struct{})

	last, err := b.wb.LastNonEmptyRow(b.facts, FactDocCol)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ledger: scan facts ledger")
	}
	if last < 2 {
		return base, keys, nil
	}

	grid, err := b.wb.ReadRange(b.facts, FactDocCol, 2, FactBaseMCol, last)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ledger: read facts ledger")
	}
	for i, row := range grid {
		doc := canon.Document(row[0])
		if doc == "" {
			continue
		}
		rowNum := 2 + i

		if _, seen := base[doc]; !seen {
			base[doc] = BaseValue{
				Row: rowNum,
				L:   rawTrim(row[FactBaseLCol-FactDocCol]),
				M:   rawTrim(row[FactBaseMCol-FactDocCol]),
			}
		}

		date := canon.DateKey(row[FactDateCol-FactDocCol])
		code := rawTrim(row[FactCodeCol-FactDocCol])
		if date != "" && code != "" {
			keys[AssetKey(doc, code, date)] = struct{}{}
		}
	}
	return base, keys, nil
}

// NextFreeRow returns one past the last non-empty row of col, floored at the
// configured minimum row.
func (b *Builder) NextFreeRow(sheet string, col int) (int, error) {
	last, err := b.wb.LastNonEmptyRow(sheet, col)
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: next free row of %s", sheet)
	}
	next := last + 1
	if next < b.minRow {
		next = b.minRow
	}
	return next, nil
}

// ExtendBase records the first occurrence of freshly appended documents so a
// later batch in the same run sees them without a store rescan. The M member
// is unknown until the store recomputes its formulas, so it stays empty.
func (idx *Indexes) ExtendBase(doc string, row int, l, m string) {
	if doc == "" {
		return
	}
	if _, seen := idx.Base[doc]; !seen {
		idx.Base[doc] = BaseValue{Row: row, L: l, M: m}
	}
}

func rawTrim(v any) string {
	return strings.TrimSpace(verbatim(v))
}

// verbatim renders a cell value without numeric coercion. The base pair is
// inherited exactly as stored; rounding it here would corrupt every asset
// row that inherits it. Integer-valued floats still render without a
// fraction, so codes read back from numeric cells match their CSV form.
func verbatim(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}
