package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfe-salud/rips-cli/internal/ledger"
	"github.com/comfe-salud/rips-cli/internal/workbook"
	"github.com/comfe-salud/rips-cli/internal/writer"
)

func makeArchive(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for entry, body := range files {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func newTestLoader(t *testing.T, zipDir string) (*workbook.Workbook, *ledger.Indexes, *Loader) {
	t.Helper()
	wb := workbook.New(filepath.Join(t.TempDir(), "ledger.xlsx"))
	for _, name := range []string{"ESTRUCTURA", "US"} {
		_, err := wb.AddSheet(name)
		require.NoError(t, err)
	}
	clog, err := ledger.ReplayControlLog(wb, "__RIPS_CONTROL__")
	require.NoError(t, err)

	idx := &ledger.Indexes{
		Identity:  map[string]struct{}{},
		Base:      map[string]ledger.BaseValue{},
		AssetKeys: map[string]struct{}{},
	}
	w := writer.New(wb, "ESTRUCTURA", "US")
	l := New(w, idx, clog, zipDir, t.TempDir(), 3, 3)
	return wb, idx, l
}

// atCSV builds an AT extract body: header plus rows with the document at
// field 3, the date at 4, the concept name at 7, and the base value at 11.
func atCSV(rows ...[4]string) string {
	body := "c0,c1,c2,c3,c4,c5,c6,c7,c8,c9,c10,c11\n"
	for _, r := range rows {
		body += ",,," + r[0] + "," + r[1] + ",,," + r[2] + ",,,," + r[3] + "\n"
	}
	return body
}

func usCSV(rows ...[2]string) string {
	body := "h1,h2\n"
	for _, r := range rows {
		body += r[0] + "," + r[1] + "\n"
	}
	return body
}

func TestRun_SingleArchive(t *testing.T) {
	zipDir := t.TempDir()
	makeArchive(t, zipDir, "2024-01.zip", map[string]string{
		"AT_enero.csv": atCSV(
			[4]string{"123", "2024-01-01", "INSUMO A", "1000"},
			[4]string{"456", "2024-01-02", "INSUMO B", "2000"},
		),
		"US_enero.csv": usCSV(
			[2]string{"CC", "123"},
			[2]string{"TI", "456"},
		),
	})

	wb, idx, l := newTestLoader(t, zipDir)
	stats, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Archives)
	assert.Equal(t, 2, stats.FactRows)
	assert.Equal(t, 2, stats.IdentityRows)
	assert.Equal(t, 5, l.NextFactRow())

	got, err := wb.ReadRange("ESTRUCTURA", ledger.FactDocCol, 3, ledger.FactBaseLCol, 4)
	require.NoError(t, err)
	assert.Equal(t, "123", got[0][0])
	assert.Equal(t, "2024-01-01", got[0][ledger.FactDateCol-ledger.FactDocCol])
	assert.Equal(t, "INSUMO A", got[0][ledger.FactNameCol-ledger.FactDocCol])
	assert.Equal(t, "1000", got[0][ledger.FactBaseLCol-ledger.FactDocCol])
	assert.Equal(t, "456", got[1][0])

	subj, err := wb.ReadRange("US", 1, 3, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "CC", subj[0][0])
	assert.Equal(t, "123", subj[0][1])

	// Fresh documents must be decidable later in the same run.
	assert.Contains(t, idx.Identity, "CC|123")
	base, ok := idx.Base["123"]
	require.True(t, ok)
	assert.Equal(t, 3, base.Row)
	assert.Equal(t, "1000", base.L)
	assert.Empty(t, base.M, "derived member unknown until the store recomputes")
}

func TestRun_ArchivesProcessLexicographically(t *testing.T) {
	zipDir := t.TempDir()
	makeArchive(t, zipDir, "b.zip", map[string]string{
		"AT_b.csv": atCSV([4]string{"222", "2024-02-01", "B", "20"}),
	})
	makeArchive(t, zipDir, "a.zip", map[string]string{
		"AT_a.csv": atCSV([4]string{"111", "2024-01-01", "A", "10"}),
	})

	wb, _, l := newTestLoader(t, zipDir)
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Archives)
	assert.Equal(t, 2, stats.FactRows)

	got, err := wb.ReadRange("ESTRUCTURA", ledger.FactDocCol, 3, ledger.FactDocCol, 4)
	require.NoError(t, err)
	assert.Equal(t, "111", got[0][0], "a.zip loads before b.zip")
	assert.Equal(t, "222", got[1][0])
}

func TestRun_KindOrderWithinBatch(t *testing.T) {
	zipDir := t.TempDir()
	makeArchive(t, zipDir, "mixed.zip", map[string]string{
		// Every kind carries the document at field 3 and the date at 4.
		"AC_x.csv": "h\n,,,333,2024-01-03\n",
		"AT_x.csv": atCSV([4]string{"111", "2024-01-01", "A", "10"}),
		"AP_x.csv": "h\n,,,222,2024-01-02\n",
	})

	wb, _, l := newTestLoader(t, zipDir)
	_, err := l.Run(context.Background())
	require.NoError(t, err)

	got, err := wb.ReadRange("ESTRUCTURA", ledger.FactDocCol, 3, ledger.FactDocCol, 5)
	require.NoError(t, err)
	assert.Equal(t, "111", got[0][0], "AT loads first")
	assert.Equal(t, "222", got[1][0], "AP second")
	assert.Equal(t, "333", got[2][0], "AC third")
}

func TestRun_MissingKindTolerated(t *testing.T) {
	zipDir := t.TempDir()
	makeArchive(t, zipDir, "partial.zip", map[string]string{
		"US_only.csv": usCSV([2]string{"CC", "999"}),
	})

	_, idx, l := newTestLoader(t, zipDir)
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FactRows)
	assert.Equal(t, 1, stats.IdentityRows)
	assert.Contains(t, idx.Identity, "CC|999")
}

func TestRun_NoArchives(t *testing.T) {
	_, _, l := newTestLoader(t, t.TempDir())
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Archives)
	assert.Equal(t, 3, l.NextFactRow())
}

func TestRun_IdentityDedupeAcrossBatches(t *testing.T) {
	zipDir := t.TempDir()
	makeArchive(t, zipDir, "01.zip", map[string]string{
		"US_a.csv": usCSV([2]string{"CC", "123"}),
	})
	makeArchive(t, zipDir, "02.zip", map[string]string{
		"US_b.csv": usCSV([2]string{"CC", "123.0"}, [2]string{"TI", "456"}),
	})

	wb, _, l := newTestLoader(t, zipDir)
	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.IdentityRows, "re-encoded duplicate in batch 2 dropped")

	last, err := wb.LastNonEmptyRow("US", ledger.SubjectDocCol)
	require.NoError(t, err)
	assert.Equal(t, 4, last)
}
