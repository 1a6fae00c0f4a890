package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/shape"
)

// State is the lifecycle state of a scenario.
type State int32

const (
	// StatePending means the scenario's start offset has not been reached.
	StatePending State = iota
	// StateRunning means the scenario is producing load.
	StateRunning
	// StateDraining means the target has dropped to zero, or the scenario's
	// time is up, and workers are finishing their last cycle.
	StateDraining
	// StateDone means every worker has exited.
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ScenarioRunner drives one scenario from Pending to Done.
type ScenarioRunner struct {
	Name         string
	Executor     string
	Profile      shape.Profile
	StartOffset  time.Duration
	GracefulStop time.Duration

	interval time.Duration
	pool     *Pool
	logger   *zap.Logger

	state     atomic.Int32
	peakVUs   atomic.Int32
	started   atomic.Int64
	ended     atomic.Int64
	abandoned atomic.Int32
}

// State returns the current scenario state.
func (r *ScenarioRunner) State() State {
	return State(r.state.Load())
}

// ActiveWorkers returns the number of workers not asked to stop.
func (r *ScenarioRunner) ActiveWorkers() int {
	return r.pool.Active()
}

// PeakVUs returns the highest active worker count observed.
func (r *ScenarioRunner) PeakVUs() int {
	return int(r.peakVUs.Load())
}

// Iterations returns the number of completed worker cycles.
func (r *ScenarioRunner) Iterations() int64 {
	return r.pool.Iterations()
}

// Run waits for the start offset, then reconciles the worker count with the
// profile every control interval until the profile's duration has elapsed
// or ctx is done. It returns once every worker has exited or the graceful
// stop period has passed.
func (r *ScenarioRunner) Run(ctx context.Context, runStart time.Time) {
	defer r.state.Store(int32(StateDone))

	if wait := time.Until(runStart.Add(r.StartOffset)); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	r.started.Store(start.UnixNano())
	r.state.Store(int32(StateRunning))
	r.logger.Info("scenario started",
		zap.String("scenario", r.Name),
		zap.String("executor", r.Executor),
		zap.Duration("duration", r.Profile.TotalDuration()),
		zap.Int("target_vus", r.Profile.PeakTarget()))

	deadline := time.NewTimer(r.Profile.TotalDuration())
	defer deadline.Stop()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.reconcile(ctx, time.Since(start))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline.C:
			break loop
		case <-ticker.C:
			r.reconcile(ctx, time.Since(start))
		}
	}

	r.state.Store(int32(StateDraining))
	r.pool.StopAll()
	if !r.pool.Wait(r.GracefulStop) {
		running := r.pool.Running()
		r.abandoned.Store(int32(running))
		r.logger.Warn("workers still running after graceful stop",
			zap.String("scenario", r.Name),
			zap.Int("running", running))
	}
	r.ended.Store(time.Now().UnixNano())

	r.logger.Info("scenario finished",
		zap.String("scenario", r.Name),
		zap.Int64("iterations", r.pool.Iterations()),
		zap.Int("peak_vus", r.PeakVUs()))
}

func (r *ScenarioRunner) reconcile(ctx context.Context, elapsed time.Duration) {
	target := shape.TargetConcurrency(r.Profile, elapsed)
	active := r.pool.ScaleTo(ctx, target)

	for {
		peak := r.peakVUs.Load()
		if int32(active) <= peak || r.peakVUs.CompareAndSwap(peak, int32(active)) {
			break
		}
	}

	if target == 0 && elapsed > 0 {
		r.state.Store(int32(StateDraining))
	} else {
		r.state.Store(int32(StateRunning))
	}
}

// ScenarioResult summarises one scenario after the run.
type ScenarioResult struct {
	Name        string        `json:"name"`
	Executor    string        `json:"executor"`
	StartOffset time.Duration `json:"start_offset"`
	Duration    time.Duration `json:"duration"`
	Iterations  int64         `json:"iterations"`
	PeakVUs     int           `json:"peak_vus"`
	State       string        `json:"state"`

	// AbandonedVUs were still in flight when the graceful stop expired;
	// requests they complete afterwards may be missing from the metrics.
	AbandonedVUs int `json:"abandoned_vus,omitempty"`
}

// Result returns the scenario's summary.
func (r *ScenarioRunner) Result() ScenarioResult {
	var d time.Duration
	if s, e := r.started.Load(), r.ended.Load(); s > 0 && e > s {
		d = time.Duration(e - s)
	}
	return ScenarioResult{
		Name:         r.Name,
		Executor:     r.Executor,
		StartOffset:  r.StartOffset,
		Duration:     d,
		Iterations:   r.Iterations(),
		PeakVUs:      r.PeakVUs(),
		State:        r.State().String(),
		AbandonedVUs: int(r.abandoned.Load()),
	}
}
