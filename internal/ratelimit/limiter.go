// Package ratelimit paces outbound requests to throttled HTTP APIs.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a strict minimum interval between permits. There is no
// burst allowance: the n-th caller waits until start + n*interval.
type Limiter struct {
	mu             sync.Mutex
	nextPermitTime time.Time
	interval       time.Duration
	now            func() time.Time
}

// New creates a Limiter issuing ratePerSec permits per second.
func New(ratePerSec float64) *Limiter {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Limiter{
		nextPermitTime: time.Now(),
		interval:       time.Duration(float64(time.Second) / ratePerSec),
		now:            time.Now,
	}
}

// Wait blocks until a permit is available or ctx is done. A cancelled wait
// hands its slot back so later callers are not delayed by it.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	if l.nextPermitTime.Before(now) {
		l.nextPermitTime = now
	}
	permitTime := l.nextPermitTime
	l.nextPermitTime = permitTime.Add(l.interval)
	l.mu.Unlock()

	waitDuration := permitTime.Sub(now)
	if waitDuration <= 0 {
		return nil
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		l.nextPermitTime = l.nextPermitTime.Add(-l.interval)
		l.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval returns the spacing between permits.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Rate returns the configured permits per second.
func (l *Limiter) Rate() float64 {
	return float64(time.Second) / float64(l.Interval())
}
