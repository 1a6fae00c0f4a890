package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ioc-labs/surge/internal/config"
	"github.com/ioc-labs/surge/internal/executor"
	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/shape"
)

type fakeRequester struct {
	delay     time.Duration
	calls     atomic.Int64
	completed atomic.Int64

	mu   sync.Mutex
	tags []map[string]string
}

func (f *fakeRequester) Execute(ctx context.Context, spec shape.RequestSpec, tags map[string]string) *executor.RequestResult {
	if err := ctx.Err(); err != nil {
		return &executor.RequestResult{Error: err}
	}
	f.calls.Add(1)
	f.mu.Lock()
	f.tags = append(f.tags, tags)
	f.mu.Unlock()
	time.Sleep(f.delay)
	f.completed.Add(1)
	return &executor.RequestResult{Name: spec.Name, StatusCode: 200, Recorded: true}
}

func testSelector(t *testing.T) *shape.Selector {
	t.Helper()
	sel, err := shape.NewSelector([]shape.Choice{{Name: "root", Kind: shape.KindStatic, Weight: 1, Method: "GET", Path: "/"}})
	require.NoError(t, err)
	return sel
}

func noThink() *config.ThinkTimeConfig {
	return &config.ThinkTimeConfig{Min: "0s", Max: "0s"}
}

func TestScheduler_ConstantHoldsWorkers(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"baseline": {Executor: config.ExecutorConstantVUs, VUs: 5, Duration: "600ms", Tags: map[string]string{"test_type": "baseline"}},
		},
	}
	req := &fakeRequester{delay: 5 * time.Millisecond}
	sink := metrics.NewSink()
	s, err := New(cfg, req, testSelector(t), sink, Options{ControlInterval: 50 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 5, s.ActiveWorkers("baseline"))
	r, ok := s.Scenario("baseline")
	require.True(t, ok)
	assert.Equal(t, StateRunning, r.State())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 5, s.ActiveWorkers("baseline"))

	require.NoError(t, <-done)
	assert.Equal(t, 0, s.ActiveWorkers("baseline"))
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, 0, r.pool.Running())

	res := s.Results()
	require.Len(t, res, 1)
	assert.Equal(t, 5, res[0].PeakVUs)
	assert.Equal(t, "done", res[0].State)
	assert.Equal(t, req.completed.Load(), res[0].Iterations)
	assert.Equal(t, 5, s.PeakVUs())

	iters, _ := sink.Snapshot(time.Second).Get(metrics.Iterations)
	assert.Equal(t, float64(req.completed.Load()), iters.Sum)
	vus, ok := sink.Snapshot(time.Second).Get(metrics.VUs)
	require.True(t, ok)
	assert.Equal(t, 5.0, vus.Max)

	req.mu.Lock()
	defer req.mu.Unlock()
	require.NotEmpty(t, req.tags)
	assert.Equal(t, "baseline", req.tags[0]["scenario"])
	assert.Equal(t, "baseline", req.tags[0]["test_type"])
}

func TestScheduler_RampFollowsProfile(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"ramp": {
				Executor: config.ExecutorRampingVUs,
				Stages:   []config.StageConfig{{Duration: "1s", Target: 20}, {Duration: "400ms", Target: 0}},
			},
		},
	}
	req := &fakeRequester{delay: 5 * time.Millisecond}
	s, err := New(cfg, req, testSelector(t), metrics.NewSink(), Options{ControlInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(500 * time.Millisecond)
	mid := s.ActiveWorkers("ramp")
	assert.InDelta(t, 10, mid, 3, "workers at the ramp midpoint")

	time.Sleep(450 * time.Millisecond)
	assert.InDelta(t, 19, s.ActiveWorkers("ramp"), 3)

	require.NoError(t, <-done)
	r, _ := s.Scenario("ramp")
	assert.Equal(t, StateDone, r.State())
	assert.GreaterOrEqual(t, r.PeakVUs(), 18)
}

func TestScheduler_StartOffset(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"late": {Executor: config.ExecutorConstantVUs, VUs: 2, Duration: "200ms", StartTime: "300ms"},
		},
	}
	req := &fakeRequester{delay: time.Millisecond}
	s, err := New(cfg, req, testSelector(t), metrics.NewSink(), Options{ControlInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	r, _ := s.Scenario("late")
	assert.Equal(t, StatePending, r.State())
	assert.Zero(t, req.calls.Load())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, StateRunning, r.State())
	assert.Equal(t, 2, s.ActiveWorkers("late"))

	require.NoError(t, <-done)
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, 300*time.Millisecond, r.Result().StartOffset)
}

func TestScheduler_CancelStopsWorkers(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: &config.ThinkTimeConfig{Min: "1s", Max: "2s"}},
		Scenarios: map[string]*config.ScenarioConfig{
			"long": {Executor: config.ExecutorConstantVUs, VUs: 10, Duration: "1h"},
		},
	}
	req := &fakeRequester{delay: 20 * time.Millisecond}
	s, err := New(cfg, req, testSelector(t), metrics.NewSink(), Options{ControlInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// in-flight requests were allowed to finish and nothing new started
	assert.Equal(t, req.calls.Load(), req.completed.Load())
	calls := req.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, req.calls.Load())
}

func TestScheduler_MaxRPS(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"capped": {Executor: config.ExecutorConstantVUs, VUs: 10, Duration: "1s"},
		},
	}
	req := &fakeRequester{}
	s, err := New(cfg, req, testSelector(t), metrics.NewSink(), Options{ControlInterval: 50 * time.Millisecond, MaxRPS: 50})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	// 50 burst + 50/s for one second, with slack for timer granularity
	assert.LessOrEqual(t, req.calls.Load(), int64(120))
	assert.Greater(t, req.calls.Load(), int64(50))
}

func TestScheduler_MaxRPSStopsWaitingWorkers(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"crowd": {Executor: config.ExecutorConstantVUs, VUs: 20, Duration: "300ms"},
		},
	}
	req := &fakeRequester{}
	s, err := New(cfg, req, testSelector(t), metrics.NewSink(), Options{ControlInterval: 20 * time.Millisecond, MaxRPS: 2})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.Run(context.Background()))

	// workers queued behind the limiter leave as soon as the scenario ends
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.LessOrEqual(t, req.calls.Load(), int64(3))
	r, _ := s.Scenario("crowd")
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, 0, r.pool.Running())
}

func TestScheduler_MaxRPSBudgetOutlivesStoppedWorkers(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"crowd": {Executor: config.ExecutorConstantVUs, VUs: 20, Duration: "300ms"},
			"late":  {Executor: config.ExecutorConstantVUs, VUs: 1, Duration: "2s", StartTime: "500ms"},
		},
	}
	s, err := New(cfg, &fakeRequester{}, testSelector(t), metrics.NewSink(), Options{ControlInterval: 20 * time.Millisecond, MaxRPS: 2})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	late, _ := s.Scenario("late")
	// 2 req/s for 2s, less slack for the first token and timer granularity
	assert.GreaterOrEqual(t, late.Iterations(), int64(3))
}

func TestThrottle_CancelledWaitReturnsToken(t *testing.T) {
	th := newThrottle(1)
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	queued := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() { queued <- th.Wait(ctx) }()
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, <-queued, context.Canceled)
	}

	// one token refills in a second; no cancelled waiter kept a reservation
	start := time.Now()
	require.NoError(t, th.Wait(context.Background()))
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestScheduler_GracefulStopExpires(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"slow": {Executor: config.ExecutorConstantVUs, VUs: 2, Duration: "100ms", GracefulStop: "50ms"},
		},
	}
	req := &fakeRequester{delay: 400 * time.Millisecond}
	s, err := New(cfg, req, testSelector(t), metrics.NewSink(), Options{ControlInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.Run(context.Background()))
	assert.Less(t, time.Since(start), 350*time.Millisecond)

	res := s.Results()
	require.Len(t, res, 1)
	assert.Equal(t, 2, res[0].AbandonedVUs)
	assert.Equal(t, "done", res[0].State)
}

func TestScheduler_LogsTargetVUs(t *testing.T) {
	cfg := &config.TestConfig{
		Settings: config.GlobalSettings{ThinkTime: noThink()},
		Scenarios: map[string]*config.ScenarioConfig{
			"ramp": {Executor: config.ExecutorRampingVUs, Stages: []config.StageConfig{{Duration: "100ms", Target: 3}, {Duration: "50ms", Target: 0}}},
		},
	}
	core, logs := observer.New(zap.InfoLevel)
	s, err := New(cfg, &fakeRequester{delay: time.Millisecond}, testSelector(t), metrics.NewSink(),
		Options{ControlInterval: 20 * time.Millisecond, Logger: zap.New(core)})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	started := logs.FilterMessage("scenario started").All()
	require.Len(t, started, 1)
	assert.EqualValues(t, 3, started[0].ContextMap()["target_vus"])
}

func TestScheduler_InvalidScenario(t *testing.T) {
	cfg := &config.TestConfig{
		Scenarios: map[string]*config.ScenarioConfig{
			"bad": {Executor: config.ExecutorConstantVUs, VUs: 1, Duration: "1s", StartTime: "later"},
		},
	}
	_, err := New(cfg, &fakeRequester{}, testSelector(t), metrics.NewSink(), Options{})
	assert.Error(t, err)
}

func TestPool_ScaleDownLetsInFlightFinish(t *testing.T) {
	req := &fakeRequester{delay: 100 * time.Millisecond}
	p := newPool(workerConfig{
		requester: req,
		selector:  testSelector(t),
		sink:      metrics.NewSink(),
		tags:      map[string]string{},
	})

	ctx := context.Background()
	assert.Equal(t, 4, p.ScaleTo(ctx, 4))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, p.ScaleTo(ctx, 1))
	assert.Equal(t, 1, p.Active())
	assert.Equal(t, 4, p.Running(), "stopped workers finish their in-flight request")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, p.Running())
	assert.GreaterOrEqual(t, req.completed.Load(), int64(4))

	p.StopAll()
	assert.True(t, p.Wait(time.Second))
	assert.Equal(t, 0, p.Running())
}
