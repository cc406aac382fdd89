// Package rundb persists reconciliation run progress and raw payroll
// payloads in Postgres. The run table gates every run: a row left in
// "running" blocks further runs until a human has inspected it.
package rundb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	services "github.com/magenta-aps/sdlon/modules/engagement/services"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id         BIGSERIAL PRIMARY KEY,
    from_date  TIMESTAMPTZ NOT NULL,
    to_date    TIMESTAMPTZ NOT NULL,
    status     TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payloads (
    id          BIGSERIAL PRIMARY KEY,
    request_id  UUID NOT NULL,
    full_url    TEXT NOT NULL,
    params      TEXT NOT NULL,
    response    TEXT NOT NULL,
    status_code INT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Store struct {
	pool *pgxpool.Pool
}

// New connects to the run database and ensures the schema exists.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to run database")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "creating run database schema")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// LastRun returns the status and to-date of the most recent run row.
func (s *Store) LastRun(ctx context.Context) (string, time.Time, error) {
	var status string
	var to time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT status, to_date FROM runs ORDER BY id DESC LIMIT 1`,
	).Scan(&status, &to)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, services.ErrNoRuns
	}
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "reading last run")
	}
	return status, to, nil
}

// PersistRun records run progress. A window is written twice per run: once
// as running and once as completed, so the row sequence doubles as an audit
// trail of what was processed when.
func (s *Store) PersistRun(ctx context.Context, from, to time.Time, status string) error {
	// The completed write updates the running row of the same window
	// rather than appending, so LastRun sees one row per window.
	if status == services.RunStatusCompleted {
		tag, err := s.pool.Exec(ctx,
			`UPDATE runs SET status = $1, updated_at = now()
			 WHERE id = (
			     SELECT id FROM runs
			     WHERE from_date = $2 AND to_date = $3 AND status = $4
			     ORDER BY id DESC LIMIT 1
			 )`,
			status, from, to, services.RunStatusRunning,
		)
		if err != nil {
			return errors.Wrap(err, "completing run")
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		// No running row for this window; fall through to insert. This
		// happens for the seed row written by changed-at-init.
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (from_date, to_date, status) VALUES ($1, $2, $3)`,
		from, to, status,
	)
	return errors.Wrap(err, "persisting run")
}

// DeleteLastRun removes the most recent run row. Exposed through the trigger
// server for recovering from a crashed run after inspection.
func (s *Store) DeleteLastRun(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM runs WHERE id = (SELECT max(id) FROM runs)`,
	)
	return errors.Wrap(err, "deleting last run")
}

// FromDate returns the to-date of the last completed run, which is where the
// next run starts.
func (s *Store) FromDate(ctx context.Context) (time.Time, error) {
	var to time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT to_date FROM runs WHERE status = $1 ORDER BY id DESC LIMIT 1`,
		services.RunStatusCompleted,
	).Scan(&to)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, services.ErrNoRuns
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, "reading last completed run")
	}
	return to, nil
}

// RecordPayload stores one raw payroll response for auditing.
func (s *Store) RecordPayload(ctx context.Context, requestID uuid.UUID, fullURL, params, response string, statusCode int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payloads (request_id, full_url, params, response, status_code)
		 VALUES ($1, $2, $3, $4, $5)`,
		requestID, fullURL, params, response, statusCode,
	)
	return errors.Wrap(err, "recording payload")
}
