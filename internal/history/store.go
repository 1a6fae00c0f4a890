// Package history records run summaries in PostgreSQL so that runs against
// the same target can be compared over time.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ioc-labs/surge/internal/engine"
	"github.com/ioc-labs/surge/internal/metrics"
)

const schema = `CREATE TABLE IF NOT EXISTS surge_runs (
	run_id            UUID PRIMARY KEY,
	name              TEXT NOT NULL,
	base_url          TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT NOT NULL,
	total_requests    BIGINT NOT NULL,
	failed_rate       DOUBLE PRECISION NOT NULL,
	p95_ms            DOUBLE PRECISION NOT NULL,
	p99_ms            DOUBLE PRECISION NOT NULL,
	peak_vus          INTEGER NOT NULL,
	passed            BOOLEAN NOT NULL,
	failed_thresholds TEXT[] NOT NULL DEFAULT '{}',
	summary           JSONB NOT NULL
)`

const insertRun = `INSERT INTO surge_runs (
	run_id, name, base_url, started_at, ended_at, duration_ms, total_requests,
	failed_rate, p95_ms, p99_ms, peak_vus, passed, failed_thresholds, summary
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (run_id) DO NOTHING`

const selectRecent = `SELECT run_id, name, base_url, started_at, duration_ms, total_requests,
	failed_rate, p95_ms, p99_ms, peak_vus, passed, failed_thresholds
FROM surge_runs
WHERE name = $1
ORDER BY started_at DESC
LIMIT $2`

// Record is one stored run.
type Record struct {
	RunID            string
	Name             string
	BaseURL          string
	StartedAt        time.Time
	Duration         time.Duration
	TotalRequests    int64
	FailedRate       float64
	P95              float64
	P99              float64
	PeakVUs          int
	Passed           bool
	FailedThresholds []string
}

// Store persists run records.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using a lib/pq DSN or URL.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the runs table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create surge_runs: %w", err)
	}
	return nil
}

// Save stores a summary. Saving the same run twice is a no-op.
func (s *Store) Save(ctx context.Context, summary *engine.RunSummary) error {
	rec := FromSummary(summary)
	doc, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertRun,
		rec.RunID, rec.Name, rec.BaseURL, summary.StartTime, summary.EndTime,
		rec.Duration.Milliseconds(), rec.TotalRequests, rec.FailedRate, rec.P95, rec.P99,
		rec.PeakVUs, rec.Passed, pq.Array(rec.FailedThresholds), doc)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}
	return nil
}

// Recent returns the latest runs with the given name, newest first.
func (s *Store) Recent(ctx context.Context, name string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecent, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var durMS int64
		if err := rows.Scan(&r.RunID, &r.Name, &r.BaseURL, &r.StartedAt, &durMS, &r.TotalRequests,
			&r.FailedRate, &r.P95, &r.P99, &r.PeakVUs, &r.Passed, pq.Array(&r.FailedThresholds)); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// FromSummary extracts the indexed columns from a summary.
func FromSummary(s *engine.RunSummary) Record {
	rec := Record{
		RunID:            s.RunID,
		Name:             s.Name,
		BaseURL:          s.BaseURL,
		StartedAt:        s.StartTime,
		Duration:         s.Duration,
		PeakVUs:          s.PeakVUs,
		Passed:           s.Passed,
		FailedThresholds: []string{},
	}
	if m, ok := s.Metrics.Get(metrics.HTTPReqs); ok {
		rec.TotalRequests = int64(m.Sum)
	}
	if m, ok := s.Metrics.Get(metrics.HTTPReqFailed); ok {
		rec.FailedRate = m.Rate
	}
	if m, ok := s.Metrics.Get(metrics.HTTPReqDuration); ok {
		rec.P95 = m.P95
		rec.P99 = m.P99
	}
	for _, r := range s.FailedThresholds() {
		rec.FailedThresholds = append(rec.FailedThresholds, r.Metric+": "+r.Expression)
	}
	return rec
}
