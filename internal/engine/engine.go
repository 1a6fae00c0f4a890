// Package engine orchestrates a load test run.
//
// It coordinates:
//   - the setup probe against the target
//   - scenario scheduling with a shared executor and metrics sink
//   - threshold evaluation over the final snapshot
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("surge.yaml")
//	eng, _ := engine.New(cfg, engine.WithLogger(logger))
//	summary, err := eng.Run(ctx)
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/auth"
	"github.com/ioc-labs/surge/internal/config"
	"github.com/ioc-labs/surge/internal/executor"
	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/scheduler"
	"github.com/ioc-labs/surge/internal/shape"
	"github.com/ioc-labs/surge/internal/threshold"
)

const (
	defaultSetupTimeout = 10 * time.Second

	// MetricsNamespace prefixes every exported Prometheus metric.
	MetricsNamespace = "surge"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine and everything it drives.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry exposes the live metrics of each run on r. The collector is
// registered once, by New.
func WithRegistry(r prometheus.Registerer) Option {
	return func(e *Engine) { e.registry = r }
}

// WithHTTPClient replaces the client built from settings.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithSeed makes worker randomness reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// Engine runs one configured load test.
type Engine struct {
	cfg       *config.TestConfig
	logger    *zap.Logger
	registry  prometheus.Registerer
	collector *metrics.Collector
	client    *http.Client
	seed      uint64
}

// New applies defaults to cfg, validates it and returns an engine.
func New(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = executor.NewHTTPClient(cfg.Settings)
	}
	if e.registry != nil {
		e.collector = metrics.NewCollector(nil, MetricsNamespace)
		if err := e.registry.Register(e.collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics collector: %w", err)
		}
	}
	return e, nil
}

// Run probes the target, drives every scenario to completion and evaluates
// thresholds.
//
// A failed probe returns a nil summary and a *SetupError. Otherwise a summary
// is always returned; the error is a *ThresholdError if any threshold failed,
// or the context error if the run was cancelled.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	cfg := e.cfg
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))

	sink := metrics.NewSink()
	exec, err := e.newExecutor(sink, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("load test starting",
		zap.String("name", cfg.Name),
		zap.String("base_url", cfg.Settings.BaseURL),
		zap.Strings("scenarios", cfg.ScenarioNames()))

	setup, err := e.probe(ctx, exec)
	if err != nil {
		logger.Error("setup probe failed", zap.Error(err))
		return nil, err
	}

	selector, err := shape.NewSelectorFromConfig(cfg.Traffic)
	if err != nil {
		return nil, fmt.Errorf("invalid traffic mix: %w", err)
	}
	choices := selector.Choices()
	endpoints := make([]string, 0, len(choices))
	for _, c := range choices {
		endpoints = append(endpoints, c.Tags[shape.EndpointTag])
	}
	logger.Debug("traffic mix", zap.Strings("endpoints", endpoints))
	interval, err := config.ParseDurationString(cfg.Settings.ControlInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid controlInterval: %w", err)
	}
	sched, err := scheduler.New(cfg, exec, selector, sink, scheduler.Options{
		ControlInterval: interval,
		MaxRPS:          cfg.Settings.MaxRPS,
		Seed:            e.seed,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	if e.collector != nil {
		e.collector.Attach(sink)
		defer e.collector.Detach()
	}

	start := time.Now()
	runErr := sched.Run(ctx)
	end := time.Now()

	// workers left behind by an expired graceful stop must not skew the snapshot
	sink.Close()

	thresholds := threshold.FromConfig(cfg.Thresholds)
	snap := sink.Snapshot(end.Sub(start), threshold.Percentiles(thresholds)...)
	results := threshold.Evaluate(snap, thresholds)

	summary := &RunSummary{
		RunID:       runID,
		Name:        cfg.Name,
		Description: cfg.Description,
		BaseURL:     cfg.Settings.BaseURL,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Setup:       setup,
		Scenarios:   sched.Results(),
		PeakVUs:     sched.PeakVUs(),
		Metrics:     snap,
		Thresholds:  results,
		Passed:      threshold.Passed(results) && runErr == nil,
		Interrupted: runErr != nil,
	}

	logger.Info("load test finished",
		zap.Duration("duration", summary.Duration),
		zap.Int("peak_vus", summary.PeakVUs),
		zap.Bool("passed", summary.Passed))

	if runErr != nil {
		return summary, fmt.Errorf("run interrupted: %w", runErr)
	}
	if failed := summary.FailedThresholds(); len(failed) > 0 {
		return summary, &ThresholdError{Failed: failed}
	}
	return summary, nil
}

func (e *Engine) newExecutor(sink *metrics.Sink, logger *zap.Logger) (*executor.Executor, error) {
	s := e.cfg.Settings

	checks, err := executor.NewCheckSet(e.cfg.Checks)
	if err != nil {
		return nil, fmt.Errorf("invalid checks: %w", err)
	}

	opts := executor.Options{
		BaseURL:   s.BaseURL,
		UserAgent: s.UserAgent,
		Headers:   s.Headers,
		Checks:    checks,
		Logger:    logger,
	}
	if s.Auth != nil {
		signer, err := auth.NewSigner(s.Auth)
		if err != nil {
			return nil, err
		}
		opts.Tokens = signer
	}
	return executor.New(e.client, sink, opts), nil
}

// probe sends the setup request. Nothing it does is recorded in the sink.
func (e *Engine) probe(ctx context.Context, exec *executor.Executor) (SetupResult, error) {
	setup := e.cfg.Setup
	result := SetupResult{URL: exec.URL(setup.HealthPath)}
	if setup.Skip {
		result.Skipped = true
		return result, nil
	}

	timeout := defaultSetupTimeout
	if setup.Timeout != "" {
		d, err := config.ParseDurationString(setup.Timeout)
		if err != nil {
			return result, fmt.Errorf("invalid setup timeout: %w", err)
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, _, dur, err := exec.Do(ctx, http.MethodGet, setup.HealthPath)
	result.Status = status
	result.Duration = dur
	if err != nil {
		return result, &SetupError{URL: result.URL, Expected: setup.ExpectStatus, Err: err}
	}
	if status != setup.ExpectStatus {
		return result, &SetupError{URL: result.URL, Status: status, Expected: setup.ExpectStatus}
	}

	e.logger.Info("target reachable", zap.String("url", result.URL), zap.Int("status", status), zap.Duration("duration", dur))
	return result, nil
}

// IsSetupError reports whether err is or wraps a *SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
