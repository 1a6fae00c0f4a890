package engine

import (
	"time"

	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/scheduler"
	"github.com/ioc-labs/surge/internal/threshold"
)

// SetupResult describes the pre-flight probe.
type SetupResult struct {
	URL      string        `json:"url"`
	Status   int           `json:"status"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// RunSummary is the complete outcome of a run. The engine never modifies a
// summary after returning it; renderers and publishers only read it.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	BaseURL     string    `json:"base_url"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	// Duration covers the scheduled load only, not the setup probe
	Duration time.Duration `json:"duration"`

	Setup      SetupResult                `json:"setup"`
	Scenarios  []scheduler.ScenarioResult `json:"scenarios"`
	PeakVUs    int                        `json:"peak_vus"`
	Metrics    metrics.Snapshot           `json:"metrics"`
	Thresholds []threshold.Result         `json:"thresholds"`
	Passed     bool                       `json:"passed"`

	// Interrupted is set when the run was cancelled before every scenario finished
	Interrupted bool `json:"interrupted,omitempty"`
}

// FailedThresholds returns the results that did not pass.
func (s *RunSummary) FailedThresholds() []threshold.Result {
	var failed []threshold.Result
	for _, r := range s.Thresholds {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
