// Package reportsink mirrors per-day experiment rollups into Postgres for
// downstream BI tools. Export-only: it never feeds back into a gating
// decision, preserving the single-host file-backed core.
package reportsink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ignite/outreach-control/internal/experiment"
)

// Sink mirrors experiment.DayRollup rows into send_experiment_daily.
type Sink struct {
	db *sql.DB
}

// Open connects to dsn (a Postgres connection string; the daemon passes the
// report_sink.database_url config value).
func Open(dsn string) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("reportsink: opening connection: %w", err)
	}
	return &Sink{db: db}, nil
}

// NewWithDB wraps an already-open *sql.DB, primarily for tests (sqlmock).
func NewWithDB(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error { return s.db.Close() }

// MirrorRollup upserts experimentID's per-day rollups. One row per day; a
// rerun with the same experiment/day overwrites the prior values rather
// than accumulating duplicates.
func (s *Sink) MirrorRollup(ctx context.Context, experimentID string, days []experiment.DayRollup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reportsink: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO send_experiment_daily
			(experiment_id, day, sent_count, reply_count, blocked_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (experiment_id, day) DO UPDATE SET
			sent_count = EXCLUDED.sent_count,
			reply_count = EXCLUDED.reply_count,
			blocked_count = EXCLUDED.blocked_count
	`)
	if err != nil {
		return fmt.Errorf("reportsink: preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range days {
		if _, err := stmt.ExecContext(ctx, experimentID, d.Date, d.Success, d.Replies, d.Blocked); err != nil {
			return fmt.Errorf("reportsink: upserting day %s: %w", d.Date, err)
		}
	}

	return tx.Commit()
}
