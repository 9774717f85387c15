//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/comfe-salud/rips-cli/internal/journal"
)

func TestFormatRuns(t *testing.T) {
	started := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := started.Add(2 * time.Minute)
	entries := []journal.Entry{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Status:      "complete",
			StartedAt:   started,
			CompletedAt: &done,
			Stats:       journal.Stats{Archives: 3, FactRows: 120, IdentityRows: 40, AssetsInserted: 7},
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    "failed",
			StartedAt: started.Add(-time.Hour),
			Error:     "load: save workbook: disk full",
		},
	}

	var buf bytes.Buffer
	formatRuns(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "120")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "disk full")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
