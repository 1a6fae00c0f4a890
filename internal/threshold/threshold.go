// Package threshold parses and evaluates pass/fail expressions against a
// metrics snapshot.
//
// An expression is "<aggregation> <op> <value>", for example:
//
//	p(95)<500
//	p95 < 500ms
//	avg<200
//	rate<0.05
//	count>1000
//
// Durations with a unit suffix are converted to milliseconds. For Counter
// metrics "rate" is events per second over the run; for Rate metrics it is
// the fraction of true samples.
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ioc-labs/surge/internal/metrics"
)

var exprPattern = regexp.MustCompile(`^(p\(\s*[0-9.]+\s*\)|\w+)\s*([<>=!]+)\s*(.+)$`)

var percentilePattern = regexp.MustCompile(`^p(?:\(\s*([0-9.]+)\s*\)|([0-9.]+))$`)

// Aggregations understood by the evaluator, besides percentiles.
const (
	AggAvg   = "avg"
	AggMin   = "min"
	AggMax   = "max"
	AggMed   = "med"
	AggRate  = "rate"
	AggCount = "count"
	AggPct   = "percentile"
)

// Expression is a parsed threshold expression.
type Expression struct {
	Raw         string
	Aggregation string
	Percentile  float64
	Op          string
	Value       float64
}

// Threshold is the set of expressions attached to one metric.
type Threshold struct {
	Metric      string
	Expressions []string
}

// Result is the outcome of one expression.
type Result struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Actual     float64 `json:"actual"`
	Passed     bool    `json:"passed"`
	Message    string  `json:"message,omitempty"`
}

// ParseExpression parses a single threshold expression.
func ParseExpression(expr string) (Expression, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return Expression{}, fmt.Errorf("threshold expression cannot be empty")
	}

	m := exprPattern.FindStringSubmatch(raw)
	if len(m) != 4 {
		return Expression{}, fmt.Errorf("invalid expression format: %s", raw)
	}
	e := Expression{Raw: raw, Op: m[2]}

	agg := m[1]
	switch agg {
	case AggAvg, AggMin, AggMax, AggMed, AggRate, AggCount:
		e.Aggregation = agg
	default:
		pm := percentilePattern.FindStringSubmatch(agg)
		if pm == nil {
			return Expression{}, fmt.Errorf("unknown aggregation %q (want p(N), pN, avg, min, max, med, rate or count)", agg)
		}
		num := pm[1] + pm[2]
		p, err := strconv.ParseFloat(num, 64)
		if err != nil || p < 0 || p > 100 {
			return Expression{}, fmt.Errorf("invalid percentile %q", num)
		}
		e.Aggregation = AggPct
		e.Percentile = p
	}

	switch e.Op {
	case "<", "<=", ">", ">=", "==", "!=":
	default:
		return Expression{}, fmt.Errorf("invalid operator %q", e.Op)
	}

	v, err := parseValue(strings.TrimSpace(m[3]))
	if err != nil {
		return Expression{}, err
	}
	e.Value = v
	return e, nil
}

// parseValue parses a plain number or a duration, returning milliseconds for durations.
func parseValue(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold value %q", s)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// FromConfig converts a metric→expressions map into thresholds ordered by metric name.
func FromConfig(m map[string][]string) []Threshold {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Threshold, 0, len(names))
	for _, name := range names {
		out = append(out, Threshold{Metric: name, Expressions: m[name]})
	}
	return out
}

// Percentiles returns every percentile referenced by thresholds, so the
// snapshot can compute them.
func Percentiles(thresholds []Threshold) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, t := range thresholds {
		for _, raw := range t.Expressions {
			e, err := ParseExpression(raw)
			if err != nil || e.Aggregation != AggPct || seen[e.Percentile] {
				continue
			}
			seen[e.Percentile] = true
			out = append(out, e.Percentile)
		}
	}
	sort.Float64s(out)
	return out
}

// Evaluate checks every expression against snap. It is pure: the same
// inputs always give the same results, in threshold then expression order.
func Evaluate(snap metrics.Snapshot, thresholds []Threshold) []Result {
	var results []Result
	for _, t := range thresholds {
		for _, raw := range t.Expressions {
			results = append(results, evaluateOne(snap, t.Metric, raw))
		}
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func evaluateOne(snap metrics.Snapshot, metric, raw string) Result {
	result := Result{Metric: metric, Expression: strings.TrimSpace(raw)}

	expr, err := ParseExpression(raw)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	m, ok := snap.Get(metric)
	if !ok {
		result.Message = fmt.Sprintf("metric %s was not recorded", metric)
		return result
	}

	actual, err := aggregate(m, expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Actual = actual
	result.Passed = compareValues(actual, expr.Op, expr.Value)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s",
			aggLabel(expr), formatFloat(actual), expr.Op, formatFloat(expr.Value))
	}
	return result
}

func aggregate(m metrics.MetricSnapshot, e Expression) (float64, error) {
	switch e.Aggregation {
	case AggRate:
		if m.Kind == metrics.Trend {
			return 0, fmt.Errorf("rate is not defined for trend metric %s", m.Name)
		}
		return m.Rate, nil
	case AggCount:
		if m.Kind == metrics.Counter {
			return m.Sum, nil
		}
		return float64(m.Count), nil
	}

	if m.Kind != metrics.Trend {
		return 0, fmt.Errorf("%s is only defined for trend metrics, %s is a %s", aggLabel(e), m.Name, m.Kind)
	}
	switch e.Aggregation {
	case AggAvg:
		return m.Avg, nil
	case AggMin:
		return m.Min, nil
	case AggMax:
		return m.Max, nil
	case AggMed:
		return m.Med, nil
	case AggPct:
		if v, ok := m.Percentile(e.Percentile); ok {
			return v, nil
		}
		if m.Count == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("percentile %s was not computed for %s", metrics.PercentileKey(e.Percentile), m.Name)
	}
	return 0, fmt.Errorf("unknown aggregation %q", e.Aggregation)
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}

func aggLabel(e Expression) string {
	if e.Aggregation == AggPct {
		return metrics.PercentileKey(e.Percentile)
	}
	return e.Aggregation
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
