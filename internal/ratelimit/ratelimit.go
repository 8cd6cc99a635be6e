// Package ratelimit tracks per-receiver notification counters for the
// current hourly window.
package ratelimit

import "sync"

// Limiter counts notifications per receiver id within one window.
// The dispatch engine only reads and increments; clearing the window
// is the scheduler's responsibility via Reset.
type Limiter struct {
	mu     sync.Mutex
	counts map[string]int
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{counts: make(map[string]int)}
}

// Count returns the current-window count for a receiver, 0 if unseen.
func (l *Limiter) Count(receiverID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[receiverID]
}

// Increment adds one to the receiver's counter and returns the new count.
func (l *Limiter) Increment(receiverID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[receiverID]++
	return l.counts[receiverID]
}

// Reset clears all counters at the start of a new window.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts = make(map[string]int)
}
