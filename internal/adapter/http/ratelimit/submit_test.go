package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, maxAttempts int) (*SubmitLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewSubmitLimiter(maxAttempts, time.Minute, time.Minute, 8*time.Minute)
	limiter.now = clock.now
	t.Cleanup(limiter.Close)
	return limiter, clock
}

func TestSubmitLimiter_AllowsUpToMax(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		allowed, wait := limiter.Check("alice")
		assert.True(t, allowed)
		assert.Zero(t, wait)
	}

	allowed, wait := limiter.Check("alice")
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, wait)
}

func TestSubmitLimiter_RemainingBlock(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1)

	limiter.Check("alice")
	limiter.Check("alice")
	clock.advance(20 * time.Second)

	allowed, wait := limiter.Check("alice")
	assert.False(t, allowed)
	assert.Equal(t, 40*time.Second, wait)
}

func TestSubmitLimiter_BlockEscalates(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1)

	limiter.Check("alice")
	_, first := limiter.Check("alice")
	assert.Equal(t, time.Minute, first)

	clock.advance(first)
	allowed, _ := limiter.Check("alice")
	require.True(t, allowed)

	_, second := limiter.Check("alice")
	assert.Equal(t, 2*time.Minute, second)
}

func TestSubmitLimiter_WindowResets(t *testing.T) {
	limiter, clock := newTestLimiter(t, 2)

	limiter.Check("alice")
	limiter.Check("alice")
	clock.advance(61 * time.Second)

	allowed, _ := limiter.Check("alice")
	assert.True(t, allowed)
}

func TestSubmitLimiter_OwnersAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)

	limiter.Check("alice")
	limiter.Check("alice")

	allowed, _ := limiter.Check("bob")
	assert.True(t, allowed)
}

func TestSubmitLimiter_Reset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)

	limiter.Check("alice")
	limiter.Check("alice")
	limiter.Reset("alice")

	allowed, _ := limiter.Check("alice")
	assert.True(t, allowed)

	limiter.Reset("nobody")
}

func TestSubmitLimiter_Disabled(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0)

	for i := 0; i < 50; i++ {
		allowed, _ := limiter.Check("alice")
		assert.True(t, allowed)
	}
}

func TestSubmitLimiter_Prune(t *testing.T) {
	limiter, clock := newTestLimiter(t, 5)

	limiter.Check("idle")
	clock.advance(90 * time.Second)
	limiter.Check("recent")
	clock.advance(40 * time.Second)

	limiter.prune()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.NotContains(t, limiter.attempts, "idle")
	assert.Contains(t, limiter.attempts, "recent")
}

func TestSubmitLimiter_PruneKeepsBlocked(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1)
	limiter.backoff.Min = time.Hour
	limiter.backoff.Max = time.Hour

	limiter.Check("alice")
	limiter.Check("alice")
	clock.advance(10 * time.Minute)

	limiter.prune()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.Contains(t, limiter.attempts, "alice")
}

func TestSubmitLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewSubmitLimiter(100, time.Minute, time.Minute, time.Minute)
	defer limiter.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				limiter.Check("alice")
			}
		}()
	}
	wg.Wait()

	limiter.mu.RLock()
	record, exists := limiter.attempts["alice"]
	limiter.mu.RUnlock()

	require.True(t, exists)
	assert.Equal(t, 100, record.Count)
}
