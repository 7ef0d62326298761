package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GlobalLimiter gates every outgoing call behind a process-wide ceiling,
// independent of per-bucket state, and tracks the service-wide halt signal
// set by global-scope rate rejections.
//
// Bucket workers share one GlobalLimiter; the halted-until timestamp is
// mutex-guarded since many workers read and write it concurrently. No
// ordering is promised across buckets waiting on Acquire.
type GlobalLimiter struct {
	limiter *rate.Limiter
	clock   func() time.Time

	mu          sync.Mutex
	haltedUntil time.Time
}

// NewGlobalLimiter creates a limiter allowing perSecond requests per second
// with the given burst.
func NewGlobalLimiter(perSecond float64, burst int) *GlobalLimiter {
	if perSecond <= 0 {
		perSecond = 50
	}
	if burst < 1 {
		burst = 1
	}
	return &GlobalLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Acquire blocks the calling bucket worker until the current time is past any
// halted-until timestamp and the rolling counter has capacity, then records
// one use.
func (g *GlobalLimiter) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait := g.haltRemaining()
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return g.limiter.Wait(ctx)
}

// RecordGlobalRejection sets halted-until = now + delay. It never shortens an
// existing halt window.
func (g *GlobalLimiter) RecordGlobalRejection(delay time.Duration) {
	if delay <= 0 {
		return
	}
	until := g.now().Add(delay)

	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.haltedUntil) {
		g.haltedUntil = until
	}
}

// HaltedUntil returns the current halt deadline, zero when none is active.
func (g *GlobalLimiter) HaltedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.haltedUntil
}

func (g *GlobalLimiter) haltRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.haltedUntil.IsZero() {
		return 0
	}
	return g.haltedUntil.Sub(g.now())
}

func (g *GlobalLimiter) now() time.Time {
	if g.clock != nil {
		return g.clock()
	}
	return time.Now().UTC()
}
