package scheduler

import (
	"fmt"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
)

// Builder accumulates the timing rules of a schedule. Nothing happens until Start.
type Builder struct {
	scheduler *Scheduler
	task      core.AsyncTask
	cfg       core.ScheduleConfig
	untilSet  bool
	err       error
}

func newBuilder(s *Scheduler, task core.AsyncTask) *Builder {
	return &Builder{scheduler: s, task: task}
}

func (b *Builder) Named(name string) *Builder {
	b.cfg.Name = name
	return b
}

// After delays the first invocation by d.
func (b *Builder) After(d time.Duration) *Builder {
	b.cfg.InitialDelay = d
	return b
}

// At delays the first invocation until t, measured on the scheduler's clock now.
func (b *Builder) At(t time.Time) *Builder {
	b.cfg.InitialDelay = b.scheduler.clock.DurationUntil(t)
	return b
}

// AndRepeatAfter repeats d after each invocation settles.
func (b *Builder) AndRepeatAfter(d time.Duration) *Builder {
	b.cfg.Mode = core.RepeatAfterCompletion
	b.cfg.Interval = d
	return b
}

// AtFixedIntervalOf repeats d after each invocation starts, whether or not it has settled.
func (b *Builder) AtFixedIntervalOf(d time.Duration) *Builder {
	b.cfg.Mode = core.RepeatFixedInterval
	b.cfg.Interval = d
	return b
}

func (b *Builder) Once() *Builder {
	return b.Exactly(1)
}

func (b *Builder) Exactly(n int) *Builder {
	if n < 1 {
		b.err = fmt.Errorf("%w: got %d", ErrInvalidLimit, n)
	}
	b.cfg.Limit = n
	return b
}

// Whilst gates every invocation; the schedule ends the first time it returns false.
func (b *Builder) Whilst(predicate core.PrePredicate) *Builder {
	b.cfg.Whilst = predicate
	return b
}

// Until ends the schedule once it returns true for an invocation's outcome.
func (b *Builder) Until(predicate core.PostPredicate) *Builder {
	b.cfg.Until = predicate
	b.untilSet = predicate != nil
	return b
}

// Config returns the configuration accumulated so far.
func (b *Builder) Config() core.ScheduleConfig {
	return b.cfg
}

func (b *Builder) validate() error {
	if b.task == nil {
		return ErrNilCallback
	}
	if b.err != nil {
		return b.err
	}
	if b.cfg.Interval < 0 {
		return fmt.Errorf("repeat interval: %w", ErrNegativeDuration)
	}
	if b.untilSet && b.cfg.Mode == core.RepeatNone && b.cfg.Limit <= 1 {
		return ErrUntilWithoutRepeat
	}
	return nil
}

// Start validates the configuration, registers the schedule and arms its first timer.
// It returns the schedule id.
func (b *Builder) Start() (string, error) {
	if err := b.validate(); err != nil {
		return "", errors.ConfigurationError(err)
	}

	cfg := b.cfg
	if cfg.Whilst == nil {
		cfg.Whilst = func(core.ScheduleState) bool { return true }
	}
	if cfg.Until == nil {
		cfg.Until = func(error, any) bool { return false }
	}
	return b.scheduler.add(cfg, b.task), nil
}
