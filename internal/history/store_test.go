package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-labs/surge/internal/engine"
	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/threshold"
)

func testSummary() *engine.RunSummary {
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &engine.RunSummary{
		RunID:     "5b1d6c2e-2f7a-4a55-9a43-0d7f4a3a2b11",
		Name:      "stage3",
		BaseURL:   "http://alb.internal",
		StartTime: start,
		EndTime:   start.Add(2 * time.Minute),
		Duration:  2 * time.Minute,
		PeakVUs:   50,
		Metrics: metrics.Snapshot{Metrics: map[string]metrics.MetricSnapshot{
			metrics.HTTPReqs:        {Name: metrics.HTTPReqs, Kind: metrics.Counter, Count: 1200, Sum: 1200},
			metrics.HTTPReqFailed:   {Name: metrics.HTTPReqFailed, Kind: metrics.Rate, Count: 1200, Rate: 0.1},
			metrics.HTTPReqDuration: {Name: metrics.HTTPReqDuration, Kind: metrics.Trend, Count: 1200, P95: 420, P99: 880},
		}},
		Thresholds: []threshold.Result{
			{Metric: metrics.HTTPReqFailed, Expression: "rate<0.05", Passed: false},
			{Metric: metrics.HTTPReqDuration, Expression: "p(95)<500", Passed: true},
		},
	}
}

func TestFromSummary(t *testing.T) {
	rec := FromSummary(testSummary())
	assert.Equal(t, int64(1200), rec.TotalRequests)
	assert.Equal(t, 0.1, rec.FailedRate)
	assert.Equal(t, 420.0, rec.P95)
	assert.Equal(t, 880.0, rec.P99)
	assert.Equal(t, []string{"http_req_failed: rate<0.05"}, rec.FailedThresholds)

	empty := FromSummary(&engine.RunSummary{RunID: "x"})
	assert.Zero(t, empty.TotalRequests)
	assert.NotNil(t, empty.FailedThresholds)
}

func TestStore_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS surge_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewStore(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := testSummary()
	mock.ExpectExec("INSERT INTO surge_runs").
		WithArgs(s.RunID, "stage3", "http://alb.internal", s.StartTime, s.EndTime,
			int64(120000), int64(1200), 0.1, 420.0, 880.0, 50, false,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewStore(db).Save(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO surge_runs").WillReturnError(errors.New("connection refused"))
	err = NewStore(db).Save(context.Background(), testSummary())
	assert.ErrorContains(t, err, "connection refused")
}

func TestStore_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"run_id", "name", "base_url", "started_at", "duration_ms", "total_requests",
		"failed_rate", "p95_ms", "p99_ms", "peak_vus", "passed", "failed_thresholds"}).
		AddRow("r2", "stage3", "http://alb", started.Add(time.Hour), int64(60000), int64(900), 0.0, 300.0, 500.0, 20, true, "{}").
		AddRow("r1", "stage3", "http://alb", started, int64(120000), int64(1200), 0.1, 420.0, 880.0, 50, false, `{"http_req_failed: rate<0.05"}`)
	mock.ExpectQuery("SELECT run_id").WithArgs("stage3", 5).WillReturnRows(rows)

	recs, err := NewStore(db).Recent(context.Background(), "stage3", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[0].RunID)
	assert.Equal(t, time.Minute, recs[0].Duration)
	assert.True(t, recs[0].Passed)
	assert.Empty(t, recs[0].FailedThresholds)
	assert.Equal(t, []string{"http_req_failed: rate<0.05"}, recs[1].FailedThresholds)
	assert.NoError(t, mock.ExpectationsWereMet())
}
