package ratelimit

import (
	"sync"
	"time"
)

type AttemptRecord struct {
	Count        int
	Violations   int
	WindowStart  time.Time
	LastAttempt  time.Time
	BlockedUntil time.Time
}

// SubmitLimiter caps job submissions per owner within a sliding window.
// An owner going over the cap is blocked, for longer on each repeat.
type SubmitLimiter struct {
	mu             sync.RWMutex
	attempts       map[string]*AttemptRecord
	maxAttempts    int
	windowDuration time.Duration
	backoff        *Backoff
	done           chan struct{}
	closeOnce      sync.Once
	now            func() time.Time
}

// NewSubmitLimiter allows maxAttempts submissions per window. Blocks start
// at minBlock and double on each violation up to maxBlock.
func NewSubmitLimiter(maxAttempts int, windowDuration, minBlock, maxBlock time.Duration) *SubmitLimiter {
	backoff := NewBackoff(minBlock, maxBlock, 2.0)
	backoff.Jitter = false

	limiter := &SubmitLimiter{
		attempts:       make(map[string]*AttemptRecord),
		maxAttempts:    maxAttempts,
		windowDuration: windowDuration,
		backoff:        backoff,
		done:           make(chan struct{}),
		now:            time.Now,
	}

	go limiter.cleanup()

	return limiter
}

// Check records one submission for ownerID and reports whether it may
// proceed. When it may not, the second value is how long to wait.
func (r *SubmitLimiter) Check(ownerID string) (bool, time.Duration) {
	if r.maxAttempts <= 0 {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[ownerID]
	if !exists {
		record = &AttemptRecord{WindowStart: now}
		r.attempts[ownerID] = record
	}
	record.LastAttempt = now

	if now.Before(record.BlockedUntil) {
		return false, record.BlockedUntil.Sub(now)
	}

	if now.Sub(record.WindowStart) > r.windowDuration {
		record.Count = 0
		record.WindowStart = now
	}

	record.Count++
	if record.Count > r.maxAttempts {
		record.Violations++
		block := r.backoff.Duration(record.Violations)
		record.BlockedUntil = now.Add(block)
		record.Count = 0
		record.WindowStart = record.BlockedUntil
		return false, block
	}

	return true, 0
}

func (r *SubmitLimiter) Reset(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, ownerID)
}

// Close stops the background cleanup.
func (r *SubmitLimiter) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *SubmitLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

// prune forgets owners that are neither blocked nor recently active.
func (r *SubmitLimiter) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for ownerID, record := range r.attempts {
		if now.Sub(record.LastAttempt) > r.windowDuration*2 && now.After(record.BlockedUntil) {
			delete(r.attempts, ownerID)
		}
	}
}
