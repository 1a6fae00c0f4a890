// Package report renders a run summary as a text summary, a JSON document
// and an HTML page.
//
// All three artifacts are built from the same view of the summary, so every
// number appears identically in each of them. A metric that was not recorded
// omits its section and is reported in Artifacts.Omitted; rendering never
// fails as a whole.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ioc-labs/surge/internal/engine"
	"github.com/ioc-labs/surge/internal/metrics"
)

// Section names, used in RenderError.
const (
	SectionRequests = "requests"
	SectionLatency  = "response_time"
	SectionVUs      = "virtual_users"
	SectionChecks   = "checks"
	SectionJSON     = "json"
	SectionHTML     = "html"
)

// RenderError reports a section that could not be rendered.
type RenderError struct {
	Section string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("section %s omitted: %v", e.Section, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Options configures rendering.
type Options struct {
	// Color enables ANSI colours in the text summary
	Color bool
}

// Artifacts are the rendered outputs of one summary.
type Artifacts struct {
	Text    string
	JSON    []byte
	HTML    []byte
	Omitted []*RenderError
}

// Render builds every artifact from summary.
func Render(summary *engine.RunSummary, opts Options) *Artifacts {
	v, omitted := buildView(summary)

	scheme := NoColorScheme()
	if opts.Color {
		scheme = DefaultColorScheme()
	}

	a := &Artifacts{Text: renderText(v, scheme)}

	var err error
	if a.JSON, err = renderJSON(summary, omitted); err != nil {
		omitted = append(omitted, &RenderError{Section: SectionJSON, Err: err})
	}
	if a.HTML, err = renderHTML(v); err != nil {
		omitted = append(omitted, &RenderError{Section: SectionHTML, Err: err})
	}
	a.Omitted = omitted
	return a
}

// Write stores the JSON and HTML artifacts. An empty path skips that file.
func (a *Artifacts) Write(jsonPath, htmlPath string) error {
	if jsonPath != "" && a.JSON != nil {
		if err := os.WriteFile(jsonPath, a.JSON, 0o644); err != nil {
			return fmt.Errorf("failed to write JSON summary: %w", err)
		}
	}
	if htmlPath != "" && a.HTML != nil {
		if err := os.WriteFile(htmlPath, a.HTML, 0o644); err != nil {
			return fmt.Errorf("failed to write HTML report: %w", err)
		}
	}
	return nil
}

// view holds every formatted value shown by the text and HTML renderers.
type view struct {
	Name        string
	Description string
	RunID       string
	BaseURL     string
	Start       string
	End         string
	Duration    string
	Passed      bool
	Interrupted bool

	Requests  *requestsView
	Latency   *latencyView
	VUs       *vusView
	Checks    []checkView
	Scenarios []scenarioView

	Thresholds []thresholdView
}

type requestsView struct {
	Total      string
	Rate       string
	Failed     string
	Successful string
}

type latencyView struct {
	Min, Avg, Med, P90, P95, P99, Max string
}

type vusView struct {
	Max string
	Avg string
}

type checkView struct {
	Name   string
	Passed bool
	Rate   string
	Passes string
	Fails  string
}

type scenarioView struct {
	Name       string
	Executor   string
	Start      string
	Duration   string
	Iterations string
	PeakVUs    string
	State      string
}

type thresholdView struct {
	Metric     string
	Expression string
	Actual     string
	Passed     bool
	Message    string
}

func buildView(s *engine.RunSummary) (*view, []*RenderError) {
	var omitted []*RenderError
	omit := func(section, metric string) {
		omitted = append(omitted, &RenderError{Section: section, Err: fmt.Errorf("metric %s was not recorded", metric)})
	}

	v := &view{
		Name:        s.Name,
		Description: s.Description,
		RunID:       s.RunID,
		BaseURL:     s.BaseURL,
		Start:       s.StartTime.Format("2006-01-02 15:04:05"),
		End:         s.EndTime.Format("2006-01-02 15:04:05 MST"),
		Duration:    formatDuration(s.Duration),
		Passed:      s.Passed,
		Interrupted: s.Interrupted,
	}
	if v.Name == "" {
		v.Name = "Load Test"
	}

	snap := s.Metrics

	if reqs, ok := snap.Get(metrics.HTTPReqs); ok {
		rv := &requestsView{
			Total:      formatNumber(int64(reqs.Sum)),
			Rate:       formatRate(reqs.Rate),
			Failed:     "n/a",
			Successful: "0",
		}
		if failed, ok := snap.Get(metrics.HTTPReqFailed); ok {
			rv.Failed = formatPercent(failed.Rate)
		}
		if succ, ok := snap.Get(metrics.SuccessfulRequests); ok {
			rv.Successful = formatNumber(int64(succ.Sum))
		}
		v.Requests = rv
	} else {
		omit(SectionRequests, metrics.HTTPReqs)
	}

	if d, ok := snap.Get(metrics.HTTPReqDuration); ok {
		p90, _ := d.Percentile(90)
		p95, _ := d.Percentile(95)
		p99, _ := d.Percentile(99)
		v.Latency = &latencyView{
			Min: formatLatency(d.Min),
			Avg: formatLatency(d.Avg),
			Med: formatLatency(d.Med),
			P90: formatLatency(p90),
			P95: formatLatency(p95),
			P99: formatLatency(p99),
			Max: formatLatency(d.Max),
		}
	} else {
		omit(SectionLatency, metrics.HTTPReqDuration)
	}

	if vus, ok := snap.Get(metrics.VUs); ok {
		v.VUs = &vusView{
			Max: formatNumber(int64(max(vus.Max, float64(s.PeakVUs)))),
			Avg: formatFloat(vus.Avg),
		}
	} else {
		omit(SectionVUs, metrics.VUs)
	}

	v.Checks = buildChecks(snap)
	if len(v.Checks) == 0 {
		omit(SectionChecks, metrics.Checks)
	}

	for _, sc := range s.Scenarios {
		state := sc.State
		if sc.AbandonedVUs > 0 {
			state = fmt.Sprintf("%s (%d VUs abandoned)", state, sc.AbandonedVUs)
		}
		v.Scenarios = append(v.Scenarios, scenarioView{
			Name:       sc.Name,
			Executor:   sc.Executor,
			Start:      formatDuration(sc.StartOffset),
			Duration:   formatDuration(sc.Duration),
			Iterations: formatNumber(sc.Iterations),
			PeakVUs:    formatNumber(int64(sc.PeakVUs)),
			State:      state,
		})
	}

	for _, r := range s.Thresholds {
		v.Thresholds = append(v.Thresholds, thresholdView{
			Metric:     r.Metric,
			Expression: r.Expression,
			Actual:     formatActual(r.Actual),
			Passed:     r.Passed,
			Message:    r.Message,
		})
	}

	return v, omitted
}

// buildChecks lists per-check pass rates from the tagged checks metrics.
func buildChecks(snap metrics.Snapshot) []checkView {
	var out []checkView
	for _, name := range snap.Names() {
		base, tags := metrics.SplitName(name)
		if base != metrics.Checks || !strings.HasPrefix(tags, "check:") {
			continue
		}
		m := snap.Metrics[name]
		out = append(out, checkView{
			Name:   strings.TrimPrefix(tags, "check:"),
			Passed: m.Fails == 0,
			Rate:   formatPercent(m.Rate),
			Passes: formatNumber(m.Passes),
			Fails:  formatNumber(m.Fails),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// elapsedLabel is used by the text renderer for interrupted runs.
func elapsedLabel(v *view) string {
	if v.Interrupted {
		return v.Duration + " (interrupted)"
	}
	return v.Duration
}
