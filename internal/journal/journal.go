// Package journal keeps a local SQLite history of loader runs: when each ran,
// what it ingested, and how it ended. The journal is observability only; a
// journal failure never aborts a ledger run.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Stats aggregates one run's row counts.
type Stats struct {
	Archives       int
	FactRows       int
	IdentityRows   int
	AssetsInserted int
	AssetsRejected int
}

// Entry is one recorded run.
type Entry struct {
	ID          string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Stats       Stats
	Error       string
}

// Journal provides read/write access to the runs table.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database and configures WAL mode.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "journal: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "journal: exec %s", pragma)
		}
	}
	return &Journal{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'running',
	started_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at    DATETIME,
	archives        INTEGER NOT NULL DEFAULT 0,
	fact_rows       INTEGER NOT NULL DEFAULT 0,
	identity_rows   INTEGER NOT NULL DEFAULT 0,
	assets_inserted INTEGER NOT NULL DEFAULT 0,
	assets_rejected INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the schema when absent.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "journal: migrate")
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Start records the beginning of a run and returns its ID.
func (j *Journal) Start(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, 'running', ?)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "journal: start run")
	}
	return id, nil
}

// Complete marks a run as finished with its final counts.
func (j *Journal) Complete(ctx context.Context, id string, stats Stats) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = 'complete', completed_at = ?,
		 archives = ?, fact_rows = ?, identity_rows = ?,
		 assets_inserted = ?, assets_rejected = ?
		 WHERE id = ?`,
		time.Now().UTC(),
		stats.Archives, stats.FactRows, stats.IdentityRows,
		stats.AssetsInserted, stats.AssetsRejected,
		id,
	)
	return eris.Wrapf(err, "journal: complete run %s", id)
}

// Fail marks a run as failed with its error message.
func (j *Journal) Fail(ctx context.Context, id, errMsg string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = 'failed', completed_at = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), errMsg, id,
	)
	return eris.Wrapf(err, "journal: fail run %s", id)
}

// List returns all runs, most recent first.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, status, started_at, completed_at,
		        archives, fact_rows, identity_rows, assets_inserted, assets_rejected, error
		 FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "journal: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var completed sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.Status, &e.StartedAt, &completed,
			&e.Stats.Archives, &e.Stats.FactRows, &e.Stats.IdentityRows,
			&e.Stats.AssetsInserted, &e.Stats.AssetsRejected, &e.Error,
		); err != nil {
			return nil, eris.Wrap(err, "journal: scan run")
		}
		if completed.Valid {
			t := completed.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "journal: iterate runs")
}
