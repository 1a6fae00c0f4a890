package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/config"
	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/shape"
)

const defaultGracefulStop = 30 * time.Second

// Options configures a Scheduler.
type Options struct {
	// ControlInterval is how often each scenario reconciles its worker count (default: 1s)
	ControlInterval time.Duration

	// MaxRPS caps the request rate across all scenarios (0 = unlimited)
	MaxRPS float64

	// Seed makes worker randomness reproducible (0 = random)
	Seed uint64

	Logger *zap.Logger
}

// Scheduler runs every scenario of a config concurrently, each on its own
// start offset, and samples the total worker count into the "vus" trend.
type Scheduler struct {
	runners  []*ScenarioRunner
	byName   map[string]*ScenarioRunner
	sink     *metrics.Sink
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	peakVUs int
}

// New builds a scheduler for cfg. Every worker calls requester with a spec
// drawn from selector; iteration counts and VU samples are recorded into sink.
func New(cfg *config.TestConfig, requester Requester, selector *shape.Selector, sink *metrics.Sink, opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ControlInterval <= 0 {
		opts.ControlInterval = time.Second
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}

	var gate *throttle
	if opts.MaxRPS > 0 {
		gate = newThrottle(opts.MaxRPS)
	}

	s := &Scheduler{
		byName:   make(map[string]*ScenarioRunner),
		sink:     sink,
		interval: opts.ControlInterval,
		logger:   opts.Logger,
	}

	for i, name := range cfg.ScenarioNames() {
		sc := cfg.Scenarios[name]

		profile, err := shape.NewProfile(sc)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		offset, err := config.ParseDurationString(sc.StartTime)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: invalid startTime: %w", name, err)
		}
		graceful := defaultGracefulStop
		if sc.GracefulStop != "" {
			if graceful, err = config.ParseDurationString(sc.GracefulStop); err != nil {
				return nil, fmt.Errorf("scenario %s: invalid gracefulStop: %w", name, err)
			}
		}
		thinkMin, thinkMax, err := config.ThinkTimeRange(sc.ThinkTime, cfg.Settings.ThinkTime)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}

		tags := map[string]string{"scenario": name}
		for k, v := range sc.Tags {
			tags[k] = v
		}

		r := &ScenarioRunner{
			Name:         name,
			Executor:     sc.Executor,
			Profile:      profile,
			StartOffset:  offset,
			GracefulStop: graceful,
			interval:     opts.ControlInterval,
			logger:       opts.Logger,
			pool: newPool(workerConfig{
				requester: requester,
				selector:  selector,
				sink:      sink,
				throttle:  gate,
				tags:      tags,
				thinkMin:  thinkMin,
				thinkMax:  thinkMax,
				seed:      opts.Seed + uint64(i)<<32,
				logger:    opts.Logger,
			}),
		}
		s.runners = append(s.runners, r)
		s.byName[name] = r
	}

	return s, nil
}

// Run starts every scenario and blocks until all of them are Done.
//
// If ctx is cancelled, workers exit after their in-flight request and Run
// returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	runStart := time.Now()

	sampleCtx, stopSampling := context.WithCancel(ctx)
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		s.sample(sampleCtx)
	}()

	var wg sync.WaitGroup
	for _, r := range s.runners {
		wg.Add(1)
		go func(r *ScenarioRunner) {
			defer wg.Done()
			r.Run(ctx, runStart)
		}(r)
	}
	wg.Wait()

	stopSampling()
	<-samplerDone

	return ctx.Err()
}

// ActiveWorkers returns the current worker count of a scenario.
func (s *Scheduler) ActiveWorkers(scenario string) int {
	r, ok := s.byName[scenario]
	if !ok {
		return 0
	}
	return r.ActiveWorkers()
}

// Scenario returns the runner for a scenario name.
func (s *Scheduler) Scenario(name string) (*ScenarioRunner, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// TotalWorkers returns the worker count across all scenarios.
func (s *Scheduler) TotalWorkers() int {
	total := 0
	for _, r := range s.runners {
		total += r.ActiveWorkers()
	}
	return total
}

// PeakVUs returns the highest total worker count sampled, and never less
// than the largest single-scenario peak.
func (s *Scheduler) PeakVUs() int {
	s.mu.Lock()
	peak := s.peakVUs
	s.mu.Unlock()
	for _, r := range s.runners {
		peak = max(peak, r.PeakVUs())
	}
	return peak
}

// Results returns per-scenario results in name order.
func (s *Scheduler) Results() []ScenarioResult {
	out := make([]ScenarioResult, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r.Result())
	}
	return out
}

func (s *Scheduler) sample(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.TotalWorkers()
			s.mu.Lock()
			if n > s.peakVUs {
				s.peakVUs = n
			}
			s.mu.Unlock()
			if err := s.sink.AddTrend(metrics.VUs, float64(n)); err != nil {
				s.logger.Debug("metric not recorded", zap.Error(err))
			}
		}
	}
}
