package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"realtime-chart-engine/internal/logger"
)

// Limiter is a token bucket guarding outbound upstream calls.
//
// A caller that finds the bucket empty sleeps for one token interval
// (period/capacity) while holding the lock and then receives a full bucket.
type Limiter struct {
	mu sync.Mutex

	capacity   float64
	period     time.Duration
	tokens     float64
	lastUpdate time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger logger.Interface
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep used while waiting for a token.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithLogger attaches a logger.
func WithLogger(log logger.Interface) Option {
	return func(l *Limiter) { l.logger = log }
}

// New creates a limiter admitting capacity calls per period, starting full.
func New(capacity int, period time.Duration, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if period <= 0 {
		period = time.Second
	}
	l := &Limiter{
		capacity: float64(capacity),
		period:   period,
		tokens:   float64(capacity),
		now:      time.Now,
		sleep:    Sleep,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastUpdate = l.now()
	return l
}

// Acquire blocks until a token is available and consumes it. It returns the
// context error, without consuming, if ctx ends during the wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens = l.refill(now)
	l.lastUpdate = now

	if l.tokens < 1 {
		wait := l.Interval()
		l.logger.Debug("rate limit reached, waiting", logger.NewField("wait", wait.String()))
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.tokens = l.capacity
		l.lastUpdate = l.now()
	}

	l.tokens--
	l.logger.Debug("token consumed", logger.NewField("remaining", l.tokens))
	return nil
}

// Available returns the current token count without consuming one.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refill(l.now())
}

// Reset restores a full bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.capacity
	l.lastUpdate = l.now()
	l.logger.Warn("rate limiter reset to full capacity")
}

// Interval is the time it takes to refill one token.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(l.period) / l.capacity)
}

func (l *Limiter) refill(now time.Time) float64 {
	elapsed := now.Sub(l.lastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	rate := l.capacity / l.period.Seconds()
	return math.Min(l.capacity, l.tokens+elapsed*rate)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
