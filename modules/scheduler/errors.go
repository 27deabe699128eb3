package scheduler

import "github.com/Deepreo/zeit/errors"

var (
	ErrNilCallback        = errors.New("schedule has no callback")
	ErrInvalidLimit       = errors.New("invocation limit must be at least 1")
	ErrNegativeDuration   = errors.New("duration must not be negative")
	ErrUntilWithoutRepeat = errors.New("cannot specify an until() without repeating")
	ErrScheduleNotFound   = errors.New("schedule not found")
	ErrCallbackPanicked   = errors.New("callback panicked")
)
