package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// reviewThrottle caps how many review submissions a single account may make
// inside a fixed window. State lives in memory per instance, which is enough
// to stop a single user flooding a product with feedback.
type reviewThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	opened  map[string]time.Time
	counts  map[string]int
	sweeps  int
}

const throttleSweepEvery = 512

func newReviewThrottle(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &reviewThrottle{
		limit:  limit,
		window: window,
		clock:  clock,
		opened: make(map[string]time.Time),
		counts: make(map[string]int),
	}
}

func (t *reviewThrottle) Allow(key string) bool {
	if t == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	openedAt, tracked := t.opened[key]
	if !tracked || now.Sub(openedAt) >= t.window {
		t.opened[key] = now
		t.counts[key] = 1
		t.sweep(now)
		return true
	}

	if t.counts[key] >= t.limit {
		return false
	}
	t.counts[key]++
	return true
}

// sweep drops windows that have already elapsed. Runs only every
// throttleSweepEvery new windows so the hot path stays a map lookup.
func (t *reviewThrottle) sweep(now time.Time) {
	t.sweeps++
	if t.sweeps%throttleSweepEvery != 0 {
		return
	}
	for key, openedAt := range t.opened {
		if now.Sub(openedAt) >= t.window {
			delete(t.opened, key)
			delete(t.counts, key)
		}
	}
}
