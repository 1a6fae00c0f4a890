package scheduler

import (
	"context"

	"golang.org/x/time/rate"
)

// throttle shares one rate limiter between every worker of a run.
//
// Only one worker at a time holds a limiter reservation; the others queue on
// the gate. A worker whose context is cancelled while queued never reserves
// a token, and the single holder's reservation is always the latest one, so
// cancelling it returns its token to the bucket in full.
type throttle struct {
	limiter *rate.Limiter
	gate    chan struct{}
}

func newThrottle(rps float64) *throttle {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		gate:    make(chan struct{}, 1),
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (t *throttle) Wait(ctx context.Context) error {
	select {
	case t.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.gate }()

	return t.limiter.Wait(ctx)
}
