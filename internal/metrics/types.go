// Package metrics is the run-wide metrics sink.
//
// Three kinds of metric are supported:
//   - Counter: a monotonically increasing sum
//   - Rate: the fraction of boolean samples that were true
//   - Trend: a distribution of values (milliseconds for latencies)
//
// A metric's kind is fixed when it is first recorded. Trend percentiles are
// computed from an HDR histogram only when a Snapshot is taken, so the result
// does not depend on the order samples arrived in.
package metrics

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies how a metric aggregates its samples.
type Kind string

const (
	Counter Kind = "counter"
	Rate    Kind = "rate"
	Trend   Kind = "trend"
)

// Well-known metric names.
const (
	HTTPReqs           = "http_reqs"
	HTTPReqDuration    = "http_req_duration"
	HTTPReqFailed      = "http_req_failed"
	Checks             = "checks"
	Errors             = "errors"
	SuccessfulRequests = "successful_requests"
	ResponseTime       = "response_time"
	Iterations         = "iterations"
	VUs                = "vus"
)

// ErrKindMismatch is returned when a sample's kind differs from the metric's registered kind.
var ErrKindMismatch = errors.New("metric kind mismatch")

// ErrClosed is returned by writes to a closed Sink.
var ErrClosed = errors.New("sink is closed")

// DefaultPercentiles are always present in a trend snapshot.
var DefaultPercentiles = []float64{50, 90, 95, 99}

// MetricSnapshot is the aggregated state of one metric.
//
// Fields that do not apply to the metric's kind are zero.
type MetricSnapshot struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Count is the number of samples recorded
	Count int64 `json:"count"`

	// Sum is the counter total, or the sum of trend values
	Sum float64 `json:"sum"`

	// Rate is passes/total for Rate metrics and Sum per second for Counters
	Rate float64 `json:"rate"`

	// Throughput is Count per second of run time
	Throughput float64 `json:"throughput"`

	Passes int64 `json:"passes,omitempty"`
	Fails  int64 `json:"fails,omitempty"`

	Min float64 `json:"min,omitempty"`
	Avg float64 `json:"avg,omitempty"`
	Med float64 `json:"med,omitempty"`
	P90 float64 `json:"p90,omitempty"`
	P95 float64 `json:"p95,omitempty"`
	P99 float64 `json:"p99,omitempty"`
	Max float64 `json:"max,omitempty"`

	// Percentiles holds every computed percentile keyed like "p(95)"
	Percentiles map[string]float64 `json:"percentiles,omitempty"`
}

// Percentile returns the value at percentile p if it was computed.
func (m MetricSnapshot) Percentile(p float64) (float64, bool) {
	v, ok := m.Percentiles[PercentileKey(p)]
	return v, ok
}

// Snapshot is the aggregated state of every metric at the end of a run.
type Snapshot struct {
	Elapsed time.Duration             `json:"-"`
	Seconds float64                   `json:"elapsed_seconds"`
	Metrics map[string]MetricSnapshot `json:"metrics"`
}

// Get returns a metric snapshot by name.
func (s Snapshot) Get(name string) (MetricSnapshot, bool) {
	m, ok := s.Metrics[name]
	return m, ok
}

// Names returns the metric names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PercentileKey formats a percentile as "p(95)" or "p(99.9)".
func PercentileKey(p float64) string {
	return "p(" + strconv.FormatFloat(p, 'f', -1, 64) + ")"
}

// TaggedName returns base{k:v,...} with tag keys sorted, or base when tags is empty.
func TaggedName(base string, tags map[string]string) string {
	if len(tags) == 0 {
		return base
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(tags[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// SplitName splits a tagged name into its base and tag part (without braces).
func SplitName(name string) (base, tags string) {
	i := strings.IndexByte(name, '{')
	if i < 0 || !strings.HasSuffix(name, "}") {
		return name, ""
	}
	return name[:i], name[i+1 : len(name)-1]
}
