package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	c.Advance(d)
	return nil
}

func newTestLimiter(clock *fakeClock) *Limiter {
	return New(25, 60*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep))
}

func TestLimiter_BurstThenWait(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Empty(t, clock.slept, "first 25 admissions must not block")
	assert.InDelta(t, 0, l.Available(), 1e-9)

	require.NoError(t, l.Acquire(ctx))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 2400*time.Millisecond, clock.slept[0])

	// a waiting caller receives a full bucket minus its own token
	assert.InDelta(t, 24, l.Available(), 1e-9)
}

func TestLimiter_Refill(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	clock.Advance(12 * time.Second)
	assert.InDelta(t, 5, l.Available(), 1e-9)

	clock.Advance(time.Hour)
	assert.InDelta(t, 25, l.Available(), 1e-9, "tokens never exceed capacity")

	require.NoError(t, l.Acquire(ctx))
	assert.Empty(t, clock.slept)
	assert.InDelta(t, 24, l.Available(), 1e-9)
}

func TestLimiter_PeekDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 10; i++ {
		assert.InDelta(t, 25, l.Available(), 1e-9)
	}
}

func TestLimiter_CancelledWait(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 25; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.InDelta(t, 0, l.Available(), 1e-9)
}

func TestLimiter_Reset(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	l.Reset()

	assert.InDelta(t, 25, l.Available(), 1e-9)
}

func TestLimiter_RealSleep(t *testing.T) {
	l := New(2, 100*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLimiter_Concurrent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Acquire(context.Background())
			_ = l.Available()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, l.Available(), float64(25))
}
