package core

import (
	"context"
	"fmt"
	"time"
)

// RepeatMode decides when the next timer of a schedule is armed.
type RepeatMode int

const (
	// RepeatNone runs the schedule once, or up to its invocation limit.
	RepeatNone RepeatMode = iota
	// RepeatFixedInterval arms the next timer when an invocation starts (fixed rate).
	RepeatFixedInterval
	// RepeatAfterCompletion arms the next timer once an invocation settles (fixed delay).
	RepeatAfterCompletion
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatFixedInterval:
		return "fixed_interval"
	case RepeatAfterCompletion:
		return "after_completion"
	default:
		return "unknown"
	}
}

func (m RepeatMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *RepeatMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*m = RepeatNone
	case "fixed_interval":
		*m = RepeatFixedInterval
	case "after_completion":
		*m = RepeatAfterCompletion
	default:
		return fmt.Errorf("unknown repeat mode %q", string(b))
	}
	return nil
}

// Settle reports the outcome of an invocation. Only the first call is honoured.
type Settle func(result any, err error)

// Task is a callback that completes before returning.
type Task func(ctx context.Context) (any, error)

// AsyncTask is a callback that reports its outcome through settle, possibly later
// and from another goroutine or timer.
type AsyncTask func(ctx context.Context, settle Settle)

// Middleware wraps an AsyncTask to add cross-cutting concerns.
type Middleware func(next AsyncTask) AsyncTask

// Outcome is the captured result of one invocation: a value or an error.
type Outcome struct {
	Result any
	Err    error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// PrePredicate gates each invocation; returning false terminates the schedule.
type PrePredicate func(state ScheduleState) bool

// PostPredicate is checked after each invocation; returning true terminates the schedule.
// Fixed-interval schedules also consult it with (nil, nil) before the invocation runs.
type PostPredicate func(err error, result any) bool

// ScheduleConfig is the immutable configuration a schedule is started with.
type ScheduleConfig struct {
	Name         string
	InitialDelay time.Duration
	Mode         RepeatMode
	Interval     time.Duration
	// Limit caps the number of invocations. Zero means unlimited.
	Limit  int
	Whilst PrePredicate
	Until  PostPredicate
}

// ScheduleState is a snapshot of a schedule's bookkeeping.
type ScheduleState struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	RepeatMode      RepeatMode    `json:"repeat_mode"`
	RepeatInterval  time.Duration `json:"repeat_interval"`
	InitialDelay    time.Duration `json:"initial_delay"`
	Limited         bool          `json:"limited"`
	InvocationsLeft int           `json:"invocations_left"`
	InvocationCount int           `json:"invocation_count"`
	CreationTime    time.Time     `json:"creation_time"`
	LatestStartTime time.Time     `json:"latest_start_time"`
	LatestEndTime   time.Time     `json:"latest_end_time"`
	NextTriggerTime time.Time     `json:"next_trigger_time"`
	TimerID         TimerID       `json:"timer_id,omitempty"`
}

// Exhausted reports whether a limited schedule has no invocations left.
func (s ScheduleState) Exhausted() bool {
	return s.Limited && s.InvocationsLeft <= 0
}

// Remaining returns the invocations left and whether the schedule is limited at all.
func (s ScheduleState) Remaining() (int, bool) {
	return s.InvocationsLeft, s.Limited
}
