package threshold

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-labs/surge/internal/metrics"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		input   string
		agg     string
		pct     float64
		op      string
		value   float64
		wantErr bool
	}{
		{input: "p(95)<500", agg: AggPct, pct: 95, op: "<", value: 500},
		{input: "p95 < 500ms", agg: AggPct, pct: 95, op: "<", value: 500},
		{input: "p(99.9) <= 1s", agg: AggPct, pct: 99.9, op: "<=", value: 1000},
		{input: "avg<200", agg: AggAvg, op: "<", value: 200},
		{input: "med >= 1.5s", agg: AggMed, op: ">=", value: 1500},
		{input: "rate<0.05", agg: AggRate, op: "<", value: 0.05},
		{input: "count>1000", agg: AggCount, op: ">", value: 1000},
		{input: "max != 0", agg: AggMax, op: "!=", value: 0},
		{input: "min == 1", agg: AggMin, op: "==", value: 1},
		{input: "", wantErr: true},
		{input: "nonsense", wantErr: true},
		{input: "p(101)<5", wantErr: true},
		{input: "stddev<5", wantErr: true},
		{input: "avg => 5", wantErr: true},
		{input: "avg < fast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e, err := ParseExpression(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.agg, e.Aggregation)
			assert.Equal(t, tt.pct, e.Percentile)
			assert.Equal(t, tt.op, e.Op)
			assert.InDelta(t, tt.value, e.Value, 1e-9)
		})
	}
}

func rateSnapshot(name string, rate float64) metrics.Snapshot {
	return metrics.Snapshot{Metrics: map[string]metrics.MetricSnapshot{
		name: {Name: name, Kind: metrics.Rate, Count: 100, Rate: rate},
	}}
}

func TestEvaluate_RateBoundary(t *testing.T) {
	th := []Threshold{{Metric: metrics.HTTPReqFailed, Expressions: []string{"rate<0.05"}}}
	eps := 1e-9

	below := Evaluate(rateSnapshot(metrics.HTTPReqFailed, 0.05-eps), th)
	at := Evaluate(rateSnapshot(metrics.HTTPReqFailed, 0.05), th)
	above := Evaluate(rateSnapshot(metrics.HTTPReqFailed, 0.05+eps), th)

	assert.True(t, below[0].Passed)
	assert.False(t, at[0].Passed, "< is exclusive")
	assert.False(t, above[0].Passed)
	assert.Contains(t, above[0].Message, "rate is")
}

func TestEvaluate_Trend(t *testing.T) {
	sink := metrics.NewSink()
	for i := 1; i <= 1000; i++ {
		require.NoError(t, sink.AddTrend(metrics.HTTPReqDuration, float64(i)))
	}
	th := []Threshold{{Metric: metrics.HTTPReqDuration, Expressions: []string{
		"p(95)<960", "p(99)<900", "avg<600", "max<=1000", "p(75)<800", "count==1000",
	}}}
	snap := sink.Snapshot(10*time.Second, Percentiles(th)...)

	results := Evaluate(snap, th)
	require.Len(t, results, 6)
	assert.True(t, results[0].Passed, results[0].Message)
	assert.False(t, results[1].Passed)
	assert.True(t, results[2].Passed)
	assert.True(t, results[3].Passed)
	assert.True(t, results[4].Passed, results[4].Message)
	assert.True(t, results[5].Passed)
	assert.False(t, Passed(results))
}

func TestEvaluate_CounterRateIsThroughput(t *testing.T) {
	sink := metrics.NewSink()
	for i := 0; i < 500; i++ {
		_ = sink.Add(metrics.HTTPReqs, 1)
	}
	snap := sink.Snapshot(2 * time.Second)

	results := Evaluate(snap, []Threshold{{Metric: metrics.HTTPReqs, Expressions: []string{"rate>100", "rate>300", "count>=500"}}})
	assert.True(t, results[0].Passed)
	assert.Equal(t, 250.0, results[0].Actual)
	assert.False(t, results[1].Passed)
	assert.True(t, results[2].Passed)
}

func TestEvaluate_Failures(t *testing.T) {
	snap := metrics.Snapshot{Metrics: map[string]metrics.MetricSnapshot{
		metrics.HTTPReqs: {Name: metrics.HTTPReqs, Kind: metrics.Counter, Count: 1, Sum: 1},
		metrics.ResponseTime: {Name: metrics.ResponseTime, Kind: metrics.Trend, Count: 1, Avg: 1,
			Percentiles: map[string]float64{"p(95)": 1}},
	}}

	results := Evaluate(snap, []Threshold{
		{Metric: "missing", Expressions: []string{"rate<0.05"}},
		{Metric: metrics.HTTPReqs, Expressions: []string{"bad expr", "p(95)<1"}},
		{Metric: metrics.ResponseTime, Expressions: []string{"rate<1", "p(42)<5"}},
	})
	require.Len(t, results, 5)
	for _, r := range results {
		assert.False(t, r.Passed, r.Expression)
		assert.NotEmpty(t, r.Message, r.Expression)
	}
	assert.Contains(t, results[0].Message, "not recorded")
	assert.Contains(t, results[1].Message, "parse")
}

func TestEvaluate_IsPure(t *testing.T) {
	snap := rateSnapshot(metrics.Errors, 0.01)
	th := FromConfig(map[string][]string{metrics.Errors: {"rate<0.05"}, metrics.HTTPReqFailed: {"rate<0.05"}})

	a := Evaluate(snap, th)
	b := Evaluate(snap, th)
	assert.Equal(t, a, b)
	assert.Equal(t, metrics.Errors, a[0].Metric)
	assert.Equal(t, metrics.HTTPReqFailed, a[1].Metric)
}

func TestPercentiles(t *testing.T) {
	th := FromConfig(map[string][]string{
		"http_req_duration": {"p(99)<1000", "p(95)<500", "p95<400", "avg<1"},
		"response_time":     {"p(99.9)<2000"},
	})
	assert.Equal(t, []float64{95, 99, 99.9}, Percentiles(th))
}

func TestCompareValues(t *testing.T) {
	assert.True(t, compareValues(1, "<", 2))
	assert.True(t, compareValues(2, "<=", 2))
	assert.True(t, compareValues(3, ">", 2))
	assert.True(t, compareValues(2, ">=", 2))
	assert.True(t, compareValues(2, "==", 2))
	assert.True(t, compareValues(1, "!=", 2))
	assert.False(t, compareValues(math.NaN(), "<", 2))
	assert.False(t, compareValues(1, "~", 2))
}
