package core

import "time"

// RateLimitState is the persisted window for one "<gateway>:<backend>"
// endpoint. BackoffUntil is set after a provider answers 429.
type RateLimitState struct {
	RequestCount int
	WindowStart  time.Time
	BackoffUntil *time.Time
	Last429At    *time.Time
}

// BackoffRemaining reports how long the endpoint stays closed after a 429.
func (s *RateLimitState) BackoffRemaining(now time.Time) time.Duration {
	if s == nil || s.BackoffUntil == nil || !now.Before(*s.BackoffUntil) {
		return 0
	}
	return s.BackoffUntil.Sub(now)
}

// Roll starts a new window at now when the current one is unset or has
// elapsed, and returns the end of the active window.
func (s *RateLimitState) Roll(now time.Time, window time.Duration) time.Time {
	if s.WindowStart.IsZero() || now.After(s.WindowStart.Add(window)) {
		s.RequestCount = 0
		s.WindowStart = now
	}
	return s.WindowStart.Add(window)
}

// MarkThrottled records a 429 at now and closes the endpoint for d.
func (s *RateLimitState) MarkThrottled(now time.Time, d time.Duration) {
	at := now
	until := now.Add(d)
	s.Last429At = &at
	s.BackoffUntil = &until
}
