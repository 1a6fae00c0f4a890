package scheduler

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/executor"
	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/shape"
)

// Requester performs one request for a worker.
type Requester interface {
	Execute(ctx context.Context, spec shape.RequestSpec, tags map[string]string) *executor.RequestResult
}

// workerConfig is everything a worker cycle needs.
type workerConfig struct {
	requester Requester
	selector  *shape.Selector
	sink      *metrics.Sink
	throttle  *throttle
	tags      map[string]string
	thinkMin  time.Duration
	thinkMax  time.Duration
	seed      uint64
	logger    *zap.Logger
}

// Pool manages the VUs of one scenario.
//
// It provides:
// - VU spawning and stop signalling (ScaleTo)
// - graceful shutdown coordination (StopAll, Wait)
type Pool struct {
	cfg workerConfig

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID   atomic.Int32
	iterations atomic.Int64
	wg         sync.WaitGroup
}

func newPool(cfg workerConfig) *Pool {
	return &Pool{
		cfg: cfg,
		vus: make(map[int]*VirtualUser),
	}
}

// ScaleTo spawns or stops VUs until target VUs are active.
//
// Excess VUs are asked to stop after their current cycle, newest first.
// Returns the active count after adjustment.
func (p *Pool) ScaleTo(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}

	p.vusMu.Lock()
	defer p.vusMu.Unlock()

	p.pruneLocked()
	active := p.activeLocked()
	if len(active) < target {
		for i := len(active); i < target; i++ {
			vu := newVirtualUser(ctx, int(p.nextVUID.Add(1)))
			p.vus[vu.ID] = vu
			p.wg.Add(1)
			go p.runVU(ctx, vu)
		}
	} else if len(active) > target {
		sort.Slice(active, func(i, j int) bool { return active[i].ID > active[j].ID })
		for _, vu := range active[:len(active)-target] {
			vu.RequestStop()
		}
	}

	return len(p.activeLocked())
}

// Active returns the number of VUs that have not been asked to stop.
func (p *Pool) Active() int {
	p.vusMu.RLock()
	defer p.vusMu.RUnlock()
	return len(p.activeLocked())
}

// Running returns the number of VU goroutines that have not exited.
func (p *Pool) Running() int {
	p.vusMu.RLock()
	defer p.vusMu.RUnlock()

	n := 0
	for _, vu := range p.vus {
		if vu.GetState() != VUStateStopped {
			n++
		}
	}
	return n
}

// Iterations returns the number of completed worker cycles.
func (p *Pool) Iterations() int64 {
	return p.iterations.Load()
}

// StopAll requests all VUs to stop.
func (p *Pool) StopAll() {
	p.vusMu.RLock()
	defer p.vusMu.RUnlock()
	for _, vu := range p.vus {
		vu.RequestStop()
	}
}

// Wait blocks until every VU goroutine has exited or timeout elapses.
//
// Returns false on timeout.
func (p *Pool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (p *Pool) activeLocked() []*VirtualUser {
	active := make([]*VirtualUser, 0, len(p.vus))
	for _, vu := range p.vus {
		switch vu.GetState() {
		case VUStateIdle, VUStateRunning:
			active = append(active, vu)
		}
	}
	return active
}

// pruneLocked forgets VUs whose goroutine has exited. The caller holds the write lock.
func (p *Pool) pruneLocked() {
	for id, vu := range p.vus {
		if vu.GetState() == VUStateStopped {
			delete(p.vus, id)
		}
	}
}

// runVU is the worker loop: check stop, wait for the rate limiter, select a
// request, execute it, then sleep for a random think time.
func (p *Pool) runVU(ctx context.Context, vu *VirtualUser) {
	defer p.wg.Done()
	defer vu.MarkStopped()

	rng := rand.New(rand.NewPCG(p.cfg.seed, uint64(vu.ID)))
	vu.markRunning()

	for {
		if ctx.Err() != nil || vu.stopping() {
			return
		}

		if p.cfg.throttle != nil {
			if err := p.cfg.throttle.Wait(vu.Context()); err != nil {
				return
			}
			if vu.stopping() {
				return
			}
		}

		spec := p.cfg.selector.Select(rng)
		res := p.cfg.requester.Execute(ctx, spec, p.cfg.tags)
		if res == nil || !res.Recorded {
			return
		}

		vu.iterations.Add(1)
		p.iterations.Add(1)
		if err := p.cfg.sink.Add(metrics.Iterations, 1); err != nil {
			p.cfg.logger.Debug("metric not recorded", zap.Error(err))
		}

		if !p.think(vu, rng) {
			return
		}
	}
}

// think sleeps for a uniform random duration in [thinkMin, thinkMax].
// Returns false if the sleep was cut short by stop or cancellation.
func (p *Pool) think(vu *VirtualUser, rng *rand.Rand) bool {
	d := p.cfg.thinkMin
	if span := p.cfg.thinkMax - p.cfg.thinkMin; span > 0 {
		d += time.Duration(rng.Int64N(int64(span) + 1))
	}
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-vu.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}
