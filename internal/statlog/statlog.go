// Package statlog persists statistics snapshots to a local SQLite
// database, so operators can correlate cache behavior across runs. The
// cache itself never touches this; only the CLI and bench tool record.
package statlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

const schemaVersion = 1

// Entry is one recorded snapshot.
type Entry struct {
	ID      int64
	TakenAt time.Time
	Label   string
	Snap    pagecache.Snapshot
}

// Log is an open snapshot database.
type Log struct {
	db *sql.DB
}

// Open creates or opens the snapshot database at path.
func Open(ctx context.Context, path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("statlog: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("statlog: open %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("statlog: ping: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Log{db: db}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statlog: apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("statlog: read user_version: %w", err)
	}

	if version == schemaVersion {
		return nil
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS snapshots (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at_ns      INTEGER NOT NULL,
			label            TEXT NOT NULL,
			total_faults     INTEGER NOT NULL,
			total_mkwrite    INTEGER NOT NULL,
			total_cp_alloc   INTEGER NOT NULL,
			total_lp_created INTEGER NOT NULL,
			dirty_pages      INTEGER NOT NULL,
			allocated_cp     INTEGER NOT NULL,
			allocated_lp     INTEGER NOT NULL,
			p50_read_us      INTEGER NOT NULL,
			p99_read_us      INTEGER NOT NULL,
			p50_write_us     INTEGER NOT NULL,
			p99_write_us     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS snapshots_label ON snapshots(label, taken_at_ns);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("statlog: create schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("statlog: set user_version: %w", err)
	}

	return nil
}

// Record stores one snapshot under a label.
func (l *Log) Record(ctx context.Context, label string, snap pagecache.Snapshot) error {
	const insert = `
		INSERT INTO snapshots (
			taken_at_ns, label,
			total_faults, total_mkwrite, total_cp_alloc, total_lp_created,
			dirty_pages, allocated_cp, allocated_lp,
			p50_read_us, p99_read_us, p50_write_us, p99_write_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, insert,
		time.Now().UnixNano(), label,
		int64(snap.TotalFaults), int64(snap.TotalMkwrite),
		int64(snap.TotalCPAlloc), int64(snap.TotalLPCreated),
		int64(snap.DirtyPages), int64(snap.AllocatedCP), int64(snap.AllocatedLP),
		int64(snap.P50ReadUS), int64(snap.P99ReadUS),
		int64(snap.P50WriteUS), int64(snap.P99WriteUS))
	if err != nil {
		return fmt.Errorf("statlog: record: %w", err)
	}

	return nil
}

// Recent returns up to n snapshots, newest first. An empty label matches
// all.
func (l *Log) Recent(ctx context.Context, label string, n int) ([]Entry, error) {
	const query = `
		SELECT id, taken_at_ns, label,
			total_faults, total_mkwrite, total_cp_alloc, total_lp_created,
			dirty_pages, allocated_cp, allocated_lp,
			p50_read_us, p99_read_us, p50_write_us, p99_write_us
		FROM snapshots
		WHERE (? = '' OR label = ?)
		ORDER BY taken_at_ns DESC, id DESC
		LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, label, label, n)
	if err != nil {
		return nil, fmt.Errorf("statlog: query: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var entries []Entry

	for rows.Next() {
		var (
			e       Entry
			takenNS int64
		)

		err := rows.Scan(&e.ID, &takenNS, &e.Label,
			&e.Snap.TotalFaults, &e.Snap.TotalMkwrite,
			&e.Snap.TotalCPAlloc, &e.Snap.TotalLPCreated,
			&e.Snap.DirtyPages, &e.Snap.AllocatedCP, &e.Snap.AllocatedLP,
			&e.Snap.P50ReadUS, &e.Snap.P99ReadUS,
			&e.Snap.P50WriteUS, &e.Snap.P99WriteUS)
		if err != nil {
			return nil, fmt.Errorf("statlog: scan: %w", err)
		}

		e.TakenAt = time.Unix(0, takenNS)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statlog: rows: %w", err)
	}

	return entries, nil
}
