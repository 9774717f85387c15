// Package loader sequences the batch-load phase: discover archives, extract
// them, map the delimited extracts onto ledger rows, and append through the
// writer. Batches run strictly in lexicographic archive order; within a
// batch the record kinds run in fixed order, rows in source order.
package loader

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/comfe-salud/rips-cli/internal/canon"
	"github.com/comfe-salud/rips-cli/internal/journal"
	"github.com/comfe-salud/rips-cli/internal/ledger"
	"github.com/comfe-salud/rips-cli/internal/source"
	"github.com/comfe-salud/rips-cli/internal/writer"
)

// extractWorkers bounds concurrent archive extraction. Extraction is
// idempotent per archive, so parallel unpacking cannot affect the strict
// processing order that follows.
const extractWorkers = 4

// Kind maps one claim-extract record kind onto the facts ledger's batch
// span (E..L). Keys are source CSV field indexes; values are offsets within
// the span.
type Kind struct {
	Prefix  string
	Mapping map[int]int
}

// factKinds run in this fixed order within every batch.
var factKinds = []Kind{
	{Prefix: "AT", Mapping: map[int]int{3: 0, 4: 1, 7: 6, 11: 7}},
	{Prefix: "AP", Mapping: map[int]int{3: 0, 4: 1, 10: 4, 15: 6, 16: 7}},
	{Prefix: "AC", Mapping: map[int]int{3: 0, 4: 1, 9: 4, 17: 6, 18: 7}},
}

// identityPrefix is the subjects record kind, loaded after the fact kinds.
const identityPrefix = "US"

// Loader threads next-free-row values forward across batches itself; the
// store is never re-queried mid-run.
type Loader struct {
	w    *writer.Writer
	idx  *ledger.Indexes
	clog *ledger.ControlLog

	zipDir  string
	workDir string

	nextFactRow     int
	nextIdentityRow int
}

// New builds a loader positioned at the ledgers' current next free rows.
func New(w *writer.Writer, idx *ledger.Indexes, clog *ledger.ControlLog, zipDir, workDir string, nextFactRow, nextIdentityRow int) *Loader {
	return &Loader{
		w:               w,
		idx:             idx,
		clog:            clog,
		zipDir:          zipDir,
		workDir:         workDir,
		nextFactRow:     nextFactRow,
		nextIdentityRow: nextIdentityRow,
	}
}

// NextFactRow returns the facts ledger's next free row after the batches
// processed so far.
func (l *Loader) NextFactRow() int { return l.nextFactRow }

// Run processes every archive in the input directory and returns the
// aggregate counts. A store write failure aborts the run.
func (l *Loader) Run(ctx context.Context) (journal.Stats, error) {
	var stats journal.Stats

	archives, err := source.DiscoverArchives(l.zipDir)
	if err != nil {
		return stats, err
	}
	if len(archives) == 0 {
		zap.L().Warn("no archives found", zap.String("dir", l.zipDir))
		return stats, nil
	}

	// Unpack everything up front; processing below keeps the strict order.
	dirs := make([]string, len(archives))
	g := new(errgroup.Group)
	g.SetLimit(extractWorkers)
	for i, archive := range archives {
		g.Go(func() error {
			dir, err := source.ExtractZIP(archive, l.workDir)
			if err != nil {
				return err
			}
			dirs[i] = dir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "loader: extract archives")
	}

	for i, archive := range archives {
		log := zap.L().With(zap.String("archive", archive), zap.Int("batch", i+1), zap.Int("of", len(archives)))

		factRows, identityRows, err := l.processBatch(ctx, dirs[i])
		if err != nil {
			return stats, eris.Wrapf(err, "loader: batch %s", archive)
		}

		stats.Archives++
		stats.FactRows += factRows
		stats.IdentityRows += identityRows
		log.Info("batch loaded",
			zap.Int("fact_rows", factRows),
			zap.Int("identity_rows", identityRows),
			zap.Int("next_fact_row", l.nextFactRow),
			zap.Int("next_identity_row", l.nextIdentityRow),
		)
	}

	return stats, nil
}

func (l *Loader) processBatch(ctx context.Context, dir string) (factRows, identityRows int, err error) {
	for _, kind := range factKinds {
		n, err := l.loadFactKind(ctx, dir, kind)
		if err != nil {
			return factRows, identityRows, err
		}
		factRows += n
	}

	n, err := l.loadIdentities(ctx, dir)
	if err != nil {
		return factRows, identityRows, err
	}
	identityRows += n

	return factRows, identityRows, nil
}

func (l *Loader) loadFactKind(ctx context.Context, dir string, kind Kind) (int, error) {
	path, err := source.FindKindFile(dir, kind.Prefix)
	if err != nil {
		return 0, err
	}
	if path == "" {
		zap.L().Info("record kind absent from batch", zap.String("kind", kind.Prefix), zap.String("dir", dir))
		return 0, nil
	}

	records, err := readExtract(ctx, path)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := emptyRow(ledger.FactBatchWidth)
		for csvIdx, offset := range kind.Mapping {
			if csvIdx < len(rec) {
				row[offset] = rec[csvIdx]
			}
		}
		rows = append(rows, row)
	}

	start := l.nextFactRow
	next, err := l.w.AppendFactRows(rows, start)
	if err != nil {
		return 0, err
	}
	l.nextFactRow = next

	// Later batches (and the asset phase) must see these documents without
	// a store rescan. The M member stays empty until the store recomputes
	// its formulas.
	baseOffset := ledger.FactBaseLCol - ledger.FactBatchStartCol
	for i, row := range rows {
		doc := canon.Document(row[0])
		baseL, _ := row[baseOffset].(string)
		l.idx.ExtendBase(doc, start+i, baseL, "")
	}

	return len(rows), nil
}

func (l *Loader) loadIdentities(ctx context.Context, dir string) (int, error) {
	path, err := source.FindKindFile(dir, identityPrefix)
	if err != nil {
		return 0, err
	}
	if path == "" {
		zap.L().Info("record kind absent from batch", zap.String("kind", identityPrefix), zap.String("dir", dir))
		return 0, nil
	}

	records, err := readExtract(ctx, path)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := emptyRow(ledger.SubjectWidth)
		for i := 0; i < len(rec) && i < ledger.SubjectWidth; i++ {
			row[i] = rec[i]
		}
		rows = append(rows, row)
	}

	start := l.nextIdentityRow
	next, err := l.w.AppendIdentityRows(rows, start, l.idx.Identity, l.clog)
	if err != nil {
		return 0, err
	}
	l.nextIdentityRow = next
	return next - start, nil
}

func readExtract(ctx context.Context, path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open extract %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, err := source.CollectCSV(ctx, f, source.CSVOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read extract %s", path)
	}
	return rows, nil
}

func emptyRow(width int) []any {
	row := make([]any, width)
	for i := range row {
		row[i] = ""
	}
	return row
}
