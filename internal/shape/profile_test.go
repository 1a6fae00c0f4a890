package shape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-labs/surge/internal/config"
)

func TestTargetConcurrency_Constant(t *testing.T) {
	p := Profile{Executor: config.ExecutorConstantVUs, VUs: 10, Duration: 2 * time.Minute}

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{-time.Second, 0},
		{0, 10},
		{time.Minute, 10},
		{2*time.Minute - time.Millisecond, 10},
		{2 * time.Minute, 0},
		{3 * time.Minute, 0},
	}
	for _, tt := range tests {
		if got := TargetConcurrency(p, tt.elapsed); got != tt.want {
			t.Errorf("TargetConcurrency(%v) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestTargetConcurrency_RampMidpoint(t *testing.T) {
	p := Profile{Executor: config.ExecutorRampingVUs, Stages: []Stage{{Duration: 10 * time.Second, Target: 100}}}
	assert.Equal(t, 50, TargetConcurrency(p, 5*time.Second))

	odd := Profile{Executor: config.ExecutorRampingVUs, Stages: []Stage{{Duration: 10 * time.Second, Target: 7}}}
	assert.Equal(t, 4, TargetConcurrency(odd, 5*time.Second))
}

func TestTargetConcurrency_RampStages(t *testing.T) {
	// ramp_up: 10 -> 50 over 2m, -> 100 over 3m, -> 200 over 2m, hold 3m, -> 0 over 2m
	p := Profile{
		Executor: config.ExecutorRampingVUs,
		StartVUs: 10,
		Stages: []Stage{
			{Duration: 2 * time.Minute, Target: 50},
			{Duration: 3 * time.Minute, Target: 100},
			{Duration: 2 * time.Minute, Target: 200},
			{Duration: 3 * time.Minute, Target: 200},
			{Duration: 2 * time.Minute, Target: 0},
		},
	}

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 10},
		{time.Minute, 30},
		{2 * time.Minute, 50},
		{5 * time.Minute, 100},
		{6 * time.Minute, 150},
		{7 * time.Minute, 200},
		{9 * time.Minute, 200},
		{11 * time.Minute, 100},
		{12*time.Minute - time.Millisecond, 0},
		{12 * time.Minute, 0},
	}
	for _, tt := range tests {
		if got := TargetConcurrency(p, tt.elapsed); got != tt.want {
			t.Errorf("TargetConcurrency(%v) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
	assert.Equal(t, 12*time.Minute, p.TotalDuration())
	assert.Equal(t, 200, p.PeakTarget())
}

func TestTargetConcurrency_ZeroDurationStageJumps(t *testing.T) {
	p := Profile{
		Executor: config.ExecutorRampingVUs,
		Stages: []Stage{
			{Duration: 0, Target: 20},
			{Duration: 10 * time.Second, Target: 20},
		},
	}
	assert.Equal(t, 20, TargetConcurrency(p, 0))
	assert.Equal(t, 20, TargetConcurrency(p, 5*time.Second))
}

func TestTargetConcurrency_MaxVUs(t *testing.T) {
	p := Profile{
		Executor: config.ExecutorRampingVUs,
		MaxVUs:   300,
		Stages:   []Stage{{Duration: 10 * time.Second, Target: 1000}},
	}
	assert.Equal(t, 100, TargetConcurrency(p, time.Second))
	assert.Equal(t, 300, TargetConcurrency(p, 9*time.Second))
	assert.Equal(t, 300, p.PeakTarget())
}

func TestNewProfile(t *testing.T) {
	p, err := NewProfile(&config.ScenarioConfig{
		Executor: config.ExecutorRampingVUs,
		StartVUs: 5,
		Stages:   []config.StageConfig{{Duration: "10s", Target: 500}, {Duration: "1m", Target: 500}},
	})
	require.NoError(t, err)
	assert.Equal(t, 70*time.Second, p.TotalDuration())
	assert.Equal(t, 5, p.StartVUs)

	p, err = NewProfile(&config.ScenarioConfig{Executor: config.ExecutorConstantVUs, VUs: 3, Duration: "30s"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.TotalDuration())
	assert.Equal(t, 3, TargetConcurrency(p, 0))

	_, err = NewProfile(&config.ScenarioConfig{Executor: "constant-arrival-rate"})
	assert.Error(t, err)

	_, err = NewProfile(&config.ScenarioConfig{Executor: config.ExecutorConstantVUs, Duration: "forever"})
	assert.Error(t, err)
}
