package metrics

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Trend values are stored in the histogram in thousandths of their unit,
// so a millisecond trend has microsecond resolution.
// Range: 0 to 1 hour (in ms), 3 significant figures.
const (
	trendScale   = 1000
	trendHistMin = 1
	trendHistMax = 3_600_000_000
	trendSigFigs = 3
)

// Sink collects samples for a single run.
//
// # Thread Safety
//
// Sink is safe for concurrent use. The registry is guarded by an RWMutex and
// each metric has its own mutex, so writers to different metrics never contend.
//
// Writes made inside Batch land as a unit with respect to Close: once Close
// returns, every batch has either completed or been rejected, and every
// later write fails with ErrClosed.
type Sink struct {
	mu      sync.RWMutex
	metrics map[string]*metric

	gate   sync.RWMutex
	closed atomic.Bool
}

type metric struct {
	mu   sync.Mutex
	name string
	kind Kind

	count int64
	sum   float64
	trues int64

	min  float64
	max  float64
	hist *hdrhistogram.Histogram
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{metrics: make(map[string]*metric)}
}

// Record adds a sample to the named metric, registering it with kind on first use.
//
// For Rate metrics any non-zero value counts as true.
func (s *Sink) Record(name string, kind Kind, value float64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	m, err := s.lookup(name, kind)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.add(value)
	m.mu.Unlock()
	return nil
}

// Add increments a Counter.
func (s *Sink) Add(name string, delta float64) error {
	return s.Record(name, Counter, delta)
}

// AddRate records a boolean sample into a Rate.
func (s *Sink) AddRate(name string, ok bool) error {
	v := 0.0
	if ok {
		v = 1
	}
	return s.Record(name, Rate, v)
}

// AddTrend records a value into a Trend.
func (s *Sink) AddTrend(name string, value float64) error {
	return s.Record(name, Trend, value)
}

// Batch runs fn, whose writes all land or, if the sink is already closed,
// none are attempted. fn must not call Batch or Close.
func (s *Sink) Batch(fn func()) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closed.Load() {
		return ErrClosed
	}
	fn()
	return nil
}

// Close rejects every later write. It waits for batches in progress.
func (s *Sink) Close() {
	s.gate.Lock()
	s.closed.Store(true)
	s.gate.Unlock()
}

// Merge folds every metric of other into s.
//
// Merging is associative and commutative. A metric whose kind differs between
// the two sinks is skipped and reported in the returned error.
func (s *Sink) Merge(other *Sink) error {
	if other == nil || other == s {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}

	other.mu.RLock()
	sources := make([]*metric, 0, len(other.metrics))
	for _, m := range other.metrics {
		sources = append(sources, m)
	}
	other.mu.RUnlock()

	var mismatched []string
	for _, src := range sources {
		dst, err := s.lookup(src.name, src.kind)
		if err != nil {
			mismatched = append(mismatched, src.name)
			continue
		}

		src.mu.Lock()
		cp := src.clone()
		src.mu.Unlock()

		dst.mu.Lock()
		dst.merge(cp)
		dst.mu.Unlock()
	}

	if len(mismatched) > 0 {
		return fmt.Errorf("%w: %v", ErrKindMismatch, mismatched)
	}
	return nil
}

// Snapshot aggregates every metric.
//
// elapsed is the run duration used for per-second figures. extraPercentiles
// are computed for trends in addition to DefaultPercentiles.
func (s *Sink) Snapshot(elapsed time.Duration, extraPercentiles ...float64) Snapshot {
	percentiles := append(append([]float64(nil), DefaultPercentiles...), extraPercentiles...)

	s.mu.RLock()
	list := make([]*metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		list = append(list, m)
	}
	s.mu.RUnlock()

	snap := Snapshot{
		Elapsed: elapsed,
		Seconds: elapsed.Seconds(),
		Metrics: make(map[string]MetricSnapshot, len(list)),
	}
	for _, m := range list {
		m.mu.Lock()
		snap.Metrics[m.name] = m.snapshot(elapsed, percentiles)
		m.mu.Unlock()
	}
	return snap
}

// copies returns a copy of every metric. Each metric's lock is held only
// while it is copied.
func (s *Sink) copies() []*metric {
	s.mu.RLock()
	list := make([]*metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		list = append(list, m)
	}
	s.mu.RUnlock()

	out := make([]*metric, 0, len(list))
	for _, m := range list {
		m.mu.Lock()
		out = append(out, m.clone())
		m.mu.Unlock()
	}
	return out
}

func (s *Sink) lookup(name string, kind Kind) (*metric, error) {
	s.mu.RLock()
	m, ok := s.metrics[name]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		m, ok = s.metrics[name]
		if !ok {
			m = newMetric(name, kind)
			s.metrics[name] = m
		}
		s.mu.Unlock()
	}

	if m.kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s, not a %s", ErrKindMismatch, name, m.kind, kind)
	}
	return m, nil
}

func newMetric(name string, kind Kind) *metric {
	m := &metric{name: name, kind: kind}
	if kind == Trend {
		m.hist = hdrhistogram.New(trendHistMin, trendHistMax, trendSigFigs)
	}
	return m
}

func (m *metric) add(value float64) {
	switch m.kind {
	case Counter:
		m.count++
		m.sum += value
	case Rate:
		m.count++
		if value != 0 {
			m.trues++
		}
	case Trend:
		if m.count == 0 || value < m.min {
			m.min = value
		}
		if m.count == 0 || value > m.max {
			m.max = value
		}
		m.count++
		m.sum += value
		_ = m.hist.RecordValue(scaleTrendValue(value))
	}
}

// clone copies the metric state; the caller holds m.mu.
func (m *metric) clone() *metric {
	cp := &metric{
		name:  m.name,
		kind:  m.kind,
		count: m.count,
		sum:   m.sum,
		trues: m.trues,
		min:   m.min,
		max:   m.max,
	}
	if m.hist != nil {
		cp.hist = hdrhistogram.Import(m.hist.Export())
	}
	return cp
}

func (m *metric) merge(src *metric) {
	if src.count == 0 {
		return
	}
	if m.kind == Trend {
		if m.count == 0 || src.min < m.min {
			m.min = src.min
		}
		if m.count == 0 || src.max > m.max {
			m.max = src.max
		}
		m.hist.Merge(src.hist)
	}
	m.count += src.count
	m.sum += src.sum
	m.trues += src.trues
}

func (m *metric) snapshot(elapsed time.Duration, percentiles []float64) MetricSnapshot {
	out := MetricSnapshot{Name: m.name, Kind: m.kind, Count: m.count}
	secs := elapsed.Seconds()
	if secs > 0 {
		out.Throughput = float64(m.count) / secs
	}

	switch m.kind {
	case Counter:
		out.Sum = m.sum
		if secs > 0 {
			out.Rate = m.sum / secs
		}
	case Rate:
		out.Passes = m.trues
		out.Fails = m.count - m.trues
		if m.count > 0 {
			out.Rate = float64(m.trues) / float64(m.count)
		}
	case Trend:
		out.Sum = m.sum
		if m.count == 0 {
			break
		}
		out.Min = m.min
		out.Max = m.max
		out.Avg = m.sum / float64(m.count)
		out.Percentiles = make(map[string]float64, len(percentiles))
		for _, p := range percentiles {
			out.Percentiles[PercentileKey(p)] = m.quantile(p)
		}
		out.Med = out.Percentiles[PercentileKey(50)]
		out.P90 = out.Percentiles[PercentileKey(90)]
		out.P95 = out.Percentiles[PercentileKey(95)]
		out.P99 = out.Percentiles[PercentileKey(99)]
	}
	return out
}

// quantile reads a percentile from the histogram, clamped to the exact min/max.
func (m *metric) quantile(p float64) float64 {
	v := float64(m.hist.ValueAtQuantile(p)) / trendScale
	return math.Max(m.min, math.Min(m.max, v))
}

func scaleTrendValue(value float64) int64 {
	v := math.Round(value * trendScale)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > trendHistMax {
		return trendHistMax
	}
	return int64(v)
}
