package core

import "time"

// TimerID is the opaque handle a Clock returns for an armed timer.
type TimerID string

// Clock abstracts "now", duration arithmetic and one-shot timers so the scheduler
// can run against wall time or a manually advanced virtual time.
//
// Implementations must satisfy DurationUntil(TimeIn(d)) == d within their resolution.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time
	// TimeIn returns Now()+d, evaluated at call time.
	TimeIn(d time.Duration) time.Time
	// DurationUntil returns t-Now().
	DurationUntil(t time.Time) time.Duration
	// Milliseconds converts a millisecond count into a duration.
	Milliseconds(ms int64) time.Duration
	// SetTimer runs fn once after d has elapsed.
	SetTimer(fn func(), d time.Duration) TimerID
	// ClearTimer cancels a pending timer. Unknown, fired or already cleared
	// handles are ignored.
	ClearTimer(id TimerID)
}
