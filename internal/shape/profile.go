// Package shape turns scenario configuration into a concurrency curve and a
// request mix.
package shape

import (
	"fmt"
	"time"

	"github.com/ioc-labs/surge/internal/config"
)

// Stage is one linear segment of a ramping profile.
type Stage struct {
	Duration time.Duration
	Target   int
}

// Profile is the parsed concurrency curve of a scenario.
type Profile struct {
	Executor string

	// VUs and Duration apply to constant profiles
	VUs      int
	Duration time.Duration

	// StartVUs and Stages apply to ramping profiles
	StartVUs int
	Stages   []Stage

	// MaxVUs caps TargetConcurrency when > 0
	MaxVUs int
}

// NewProfile parses a scenario's executor settings.
func NewProfile(sc *config.ScenarioConfig) (Profile, error) {
	p := Profile{
		Executor: sc.Executor,
		VUs:      sc.VUs,
		StartVUs: sc.StartVUs,
		MaxVUs:   sc.MaxVUs,
	}

	switch sc.Executor {
	case config.ExecutorConstantVUs:
		d, err := config.ParseDurationString(sc.Duration)
		if err != nil {
			return Profile{}, fmt.Errorf("invalid duration: %w", err)
		}
		p.Duration = d
	case config.ExecutorRampingVUs:
		for i, st := range sc.Stages {
			d, err := config.ParseDurationString(st.Duration)
			if err != nil {
				return Profile{}, fmt.Errorf("invalid duration for stage %d: %w", i, err)
			}
			p.Stages = append(p.Stages, Stage{Duration: d, Target: st.Target})
		}
	default:
		return Profile{}, fmt.Errorf("unknown executor type: %s", sc.Executor)
	}
	return p, nil
}

// TotalDuration is how long the profile produces load.
func (p Profile) TotalDuration() time.Duration {
	if p.Executor == config.ExecutorConstantVUs {
		return p.Duration
	}
	var total time.Duration
	for _, st := range p.Stages {
		total += st.Duration
	}
	return total
}

// PeakTarget returns the highest concurrency the profile ever asks for.
func (p Profile) PeakTarget() int {
	peak := p.VUs
	if p.Executor == config.ExecutorRampingVUs {
		peak = p.StartVUs
		for _, st := range p.Stages {
			if st.Target > peak {
				peak = st.Target
			}
		}
	}
	if p.MaxVUs > 0 && peak > p.MaxVUs {
		return p.MaxVUs
	}
	return peak
}

// TargetConcurrency returns the desired number of workers at elapsed time
// since the scenario started.
//
// Constant profiles hold VUs for [0, Duration). Ramping profiles interpolate
// linearly from the previous target (StartVUs for the first stage) to each
// stage target, rounding to nearest; a zero-duration stage jumps straight to
// its target. Outside [0, TotalDuration) the result is 0.
func TargetConcurrency(p Profile, elapsed time.Duration) int {
	if elapsed < 0 || elapsed >= p.TotalDuration() {
		return 0
	}

	target := 0
	switch p.Executor {
	case config.ExecutorConstantVUs:
		target = p.VUs
	case config.ExecutorRampingVUs:
		target = rampTarget(p, elapsed)
	}

	if p.MaxVUs > 0 && target > p.MaxVUs {
		target = p.MaxVUs
	}
	if target < 0 {
		target = 0
	}
	return target
}

func rampTarget(p Profile, elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := p.StartVUs

	for _, stage := range p.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			v := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(v + 0.5)
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	return prevTarget
}
