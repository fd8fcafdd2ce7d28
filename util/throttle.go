// Package util holds small helpers shared by the pipeline steps.
package util

import (
	"sync"
	"time"
)

// SkipThrottler lets through at most one event per period and drops the rest.
// It is used to rate limit progress logs of long polling loops.
type SkipThrottler struct {
	mu      sync.Mutex
	d       time.Duration
	last    time.Time
	skipped int
}

func NewSkipThrottler(d time.Duration) *SkipThrottler {
	return &SkipThrottler{d: d}
}

// Ok reports whether an event may pass now.
func (tt *SkipThrottler) Ok() bool {
	ok, _ := tt.Take()
	return ok
}

// Take is Ok that also returns the number of events dropped since the last one that passed.
func (tt *SkipThrottler) Take() (bool, int) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	now := time.Now()
	if !tt.last.IsZero() && now.Before(tt.last.Add(tt.d)) {
		tt.skipped++
		return false, 0
	}
	skipped := tt.skipped
	tt.last, tt.skipped = now, 0
	return true, skipped
}
