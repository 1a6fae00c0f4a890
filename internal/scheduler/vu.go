// Package scheduler runs scenarios: it keeps each scenario's worker count at
// the level its traffic shape asks for and drives the worker loop.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has been created but has not started a cycle.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running cycles.
	VUStateRunning
	// VUStateStopping indicates the VU will exit after its current cycle.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one worker of a scenario.
//
// A VU never interrupts an in-flight request: RequestStop only cancels the
// VU's context, which the worker loop checks once per cycle and which cuts
// short rate-limiter waits and the think-time sleep.
type VirtualUser struct {
	ID int

	state      atomic.Int32
	iterations atomic.Int64

	// Stop signal, also done when the parent context is
	ctx    context.Context
	cancel context.CancelFunc

	// Done signal (closed when the VU goroutine exits)
	doneCh chan struct{}
}

// NewVirtualUser creates an idle VU.
func NewVirtualUser(id int) *VirtualUser {
	return newVirtualUser(context.Background(), id)
}

func newVirtualUser(parent context.Context, id int) *VirtualUser {
	ctx, cancel := context.WithCancel(parent)
	return &VirtualUser{
		ID:     id,
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
}

// Context is done once the VU is asked to stop or its run is cancelled.
func (vu *VirtualUser) Context() context.Context {
	return vu.ctx
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns the number of completed cycles.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iterations.Load()
}

// markRunning moves an idle VU to running. It is a no-op once stopping.
func (vu *VirtualUser) markRunning() {
	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
}

// stopping reports whether a stop was requested.
func (vu *VirtualUser) stopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// RequestStop signals the VU to stop after completing the current cycle.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		vu.cancel()
	}
}

// MarkStopped marks the VU as fully stopped. Called when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.cancel()
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}
