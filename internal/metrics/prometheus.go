package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a live Sink to a Prometheus registry.
//
// The set of metrics is only known once samples arrive, so Collector is an
// unchecked collector: Describe sends nothing. Every exported series carries a
// single "tags" label holding the tag part of the sink name, which keeps the
// label set of each family consistent.
//
// Unchecked collectors cannot be unregistered, so a long-lived registry keeps
// one Collector and points it at each run's sink with Attach and Detach.
type Collector struct {
	namespace string

	mu   sync.RWMutex
	sink *Sink
}

// NewCollector returns a collector reading from sink, which may be nil.
// Metric names are prefixed with namespace.
func NewCollector(sink *Sink, namespace string) *Collector {
	return &Collector{sink: sink, namespace: namespace}
}

// Attach makes the collector export sink.
func (c *Collector) Attach(sink *Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Detach stops exporting; Collect sends nothing until the next Attach.
func (c *Collector) Detach() {
	c.Attach(nil)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink == nil {
		return
	}

	for _, m := range sink.copies() {
		base, tags := SplitName(m.name)
		name := prometheus.BuildFQName(c.namespace, "", sanitizeMetricName(base))

		switch m.kind {
		case Counter:
			desc := prometheus.NewDesc(name+"_total", "Counter "+base, []string{"tags"}, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, m.sum, tags)
		case Rate:
			desc := prometheus.NewDesc(name+"_ratio", "Rate "+base, []string{"tags"}, nil)
			ratio := 0.0
			if m.count > 0 {
				ratio = float64(m.trues) / float64(m.count)
			}
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, ratio, tags)
		case Trend:
			desc := prometheus.NewDesc(name, "Trend "+base, []string{"tags"}, nil)
			quantiles := make(map[float64]float64, len(DefaultPercentiles))
			if m.count > 0 {
				for _, p := range DefaultPercentiles {
					quantiles[p/100] = m.quantile(p)
				}
			}
			ch <- prometheus.MustNewConstSummary(desc, uint64(m.count), m.sum, quantiles, tags)
		}
	}
}

func sanitizeMetricName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, s)
}
