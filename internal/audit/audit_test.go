package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfe-salud/rips-cli/internal/admission"
)

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	plan := []admission.PlanRow{{
		Row: 2, DocType: "CC", Doc: "123", Date: date, Code: "890201",
		Name: "Consulta Externa", BaseL: "X", BaseM: "Y", BaseRow: 10,
		ServiceRaw: "consulta",
	}}
	rejections := []admission.Rejection{{
		Row: 7, DocType: "TI", Doc: "456", Service: "laboratorio",
		Reason: admission.ReasonNoMapping, Detail: "LABORATORIO",
	}}

	require.NoError(t, WriteCSV(path, plan, rejections))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\uFEFF"), "export must carry a BOM")

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\uFEFF")))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "status", rows[0][0])

	ok := rows[1]
	assert.Equal(t, "OK", ok[0])
	assert.Equal(t, "123", ok[2])
	assert.Equal(t, "2024-03-01", ok[3])
	assert.Equal(t, "890201", ok[4])
	assert.Equal(t, "", ok[10], "reason empty on accepted rows")
	assert.Equal(t, "2", ok[12])

	no := rows[2]
	assert.Equal(t, "NO", no[0])
	assert.Equal(t, "", no[4], "business columns empty on rejections")
	assert.Equal(t, "NO_MAPPING", no[10])
	assert.Equal(t, "LABORATORIO", no[11])
	assert.Equal(t, "7", no[12])
}

func TestWriteCSV_EmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	require.NoError(t, WriteCSV(path, nil, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\uFEFF")))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
