// Package store persists enriched events and alerts to SQLite, mirroring
// the two-table schema the pipeline is built around: events and alerts,
// indexed for downstream analysis.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sentrypipe/internal/event"
)

// Store owns the events/alerts database. Only the indexer writes to it; the
// run summary opens a separate read-only handle (see OpenReadOnly).
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and opens the database at path, enabling WAL
// mode and relaxed synchronous commit for write throughput, then ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// A single writer (the indexer) touches this database; cap the pool so
	// SQLite never sees concurrent writers from this process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens path without mutating it, for the run-summary query the
// orchestrator issues after shutdown.
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open store read-only: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ip TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		method TEXT,
		url TEXT,
		status INTEGER,
		bytes INTEGER,
		referer TEXT,
		user_agent TEXT,
		browser TEXT,
		os TEXT,
		ip_class TEXT,
		suspicious INTEGER NOT NULL,
		ingested_at TEXT NOT NULL,
		indexed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_ip ON events(ip);
	CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
	CREATE INDEX IF NOT EXISTS idx_events_suspicious ON events(suspicious);

	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_type TEXT NOT NULL,
		ip TEXT,
		count INTEGER,
		window_start TEXT,
		window_end TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_ip ON alerts(ip);
	CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(alert_type);
	`
	_, err := db.Exec(schema)
	return err
}

const isoLayout = time.RFC3339Nano

// InsertEvents writes a batch of events in one transaction, as the indexer
// requires: either the whole batch lands or none of it does.
func (s *Store) InsertEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin events transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			ip, timestamp, method, url, status, bytes, referer, user_agent,
			browser, os, ip_class, suspicious, ingested_at, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		suspicious := 0
		if e.Suspicious {
			suspicious = 1
		}
		if _, err := stmt.ExecContext(ctx,
			e.IP,
			e.Timestamp.Format(isoLayout),
			e.Method,
			e.URL,
			e.Status,
			e.Bytes,
			e.Referer,
			e.UserAgent,
			e.Browser,
			e.OS,
			e.IPClass,
			suspicious,
			e.IngestedAt.Format(isoLayout),
			e.IndexedAt.Format(isoLayout),
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events transaction: %w", err)
	}
	return nil
}

// InsertAlert persists a single alert row.
func (s *Store) InsertAlert(ctx context.Context, a event.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_type, ip, count, window_start, window_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		a.Kind,
		a.IP,
		a.Count,
		a.WindowStart.Format(isoLayout),
		a.WindowEnd.Format(isoLayout),
		a.CreatedAt.Format(isoLayout),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Summary is the run-report the orchestrator prints at shutdown.
type Summary struct {
	TotalEvents    int64
	TotalAlerts    int64
	MeanLatencyMs  float64
	MinLatencyMs   float64
	MaxLatencyMs   float64
	RuntimeSeconds float64
}

// Throughput returns events persisted per second over the run, or 0 when the
// runtime is not yet known.
func (s Summary) Throughput() float64 {
	if s.RuntimeSeconds <= 0 {
		return 0
	}
	return float64(s.TotalEvents) / s.RuntimeSeconds
}

// Summarize queries total event/alert counts and ingest→index latency
// statistics for the run summary.
func (s *Store) Summarize(ctx context.Context, runtime time.Duration) (Summary, error) {
	var sum Summary
	sum.RuntimeSeconds = runtime.Seconds()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&sum.TotalEvents); err != nil {
		return Summary{}, fmt.Errorf("count events: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&sum.TotalAlerts); err != nil {
		return Summary{}, fmt.Errorf("count alerts: %w", err)
	}

	if sum.TotalEvents == 0 {
		return sum, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT ingested_at, indexed_at FROM events WHERE indexed_at != ''`)
	if err != nil {
		return Summary{}, fmt.Errorf("query latencies: %w", err)
	}
	defer rows.Close()

	var total, min, max float64
	var n int
	for rows.Next() {
		var ingestedStr, indexedStr string
		if err := rows.Scan(&ingestedStr, &indexedStr); err != nil {
			return Summary{}, fmt.Errorf("scan latency row: %w", err)
		}
		ingested, err1 := time.Parse(isoLayout, ingestedStr)
		indexed, err2 := time.Parse(isoLayout, indexedStr)
		if err1 != nil || err2 != nil {
			continue
		}
		ms := float64(indexed.Sub(ingested).Microseconds()) / 1000.0
		total += ms
		if n == 0 || ms < min {
			min = ms
		}
		if n == 0 || ms > max {
			max = ms
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate latency rows: %w", err)
	}
	if n > 0 {
		sum.MeanLatencyMs = total / float64(n)
		sum.MinLatencyMs = min
		sum.MaxLatencyMs = max
	}

	return sum, nil
}
