package clock

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Deepreo/zeit/core"
	commonErrors "github.com/Deepreo/zeit/errors"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Gocron is a wall clock whose timers are gocron one-time jobs. Handles are job IDs.
type Gocron struct {
	scheduler gocron.Scheduler
	clock     clockwork.Clock
	fallback  *Real
	logger    *slog.Logger
	mu        sync.Mutex
	jobs      map[core.TimerID]uuid.UUID
}

type GocronOption func(*gocronOptions)

type gocronOptions struct {
	clock  clockwork.Clock
	logger *slog.Logger
	loc    *time.Location
}

func WithGocronClock(c clockwork.Clock) GocronOption {
	return func(o *gocronOptions) {
		o.clock = c
	}
}

func WithGocronLogger(logger *slog.Logger) GocronOption {
	return func(o *gocronOptions) {
		o.logger = logger
	}
}

func WithLocation(loc *time.Location) GocronOption {
	return func(o *gocronOptions) {
		o.loc = loc
	}
}

// NewGocron creates and starts a gocron scheduler backing the clock's timers.
func NewGocron(options ...GocronOption) (*Gocron, error) {
	opts := &gocronOptions{
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		loc:    time.Local,
	}
	for _, option := range options {
		option(opts)
	}

	s, err := gocron.NewScheduler(
		gocron.WithClock(opts.clock),
		gocron.WithLogger(opts.logger),
		gocron.WithLocation(opts.loc),
	)
	if err != nil {
		return nil, commonErrors.InfraError(err)
	}
	s.Start()

	return &Gocron{
		scheduler: s,
		clock:     opts.clock,
		fallback:  NewReal(WithClockwork(opts.clock)),
		logger:    opts.logger,
		jobs:      make(map[core.TimerID]uuid.UUID),
	}, nil
}

func (g *Gocron) Now() time.Time {
	return g.clock.Now()
}

func (g *Gocron) TimeIn(d time.Duration) time.Time {
	return g.clock.Now().Add(d)
}

func (g *Gocron) DurationUntil(t time.Time) time.Duration {
	return g.clock.Until(t)
}

func (g *Gocron) Milliseconds(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (g *Gocron) SetTimer(fn func(), d time.Duration) core.TimerID {
	// The job may run before NewJob returns, so the handle is reserved first.
	var id core.TimerID
	ready := make(chan struct{})
	task := gocron.NewTask(func() {
		<-ready
		g.mu.Lock()
		jobID, ok := g.jobs[id]
		delete(g.jobs, id)
		g.mu.Unlock()
		if !ok {
			return // Cleared before firing
		}
		fn()
		go g.forget(jobID)
	})

	job, err := g.scheduler.NewJob(gocron.OneTimeJob(g.startAt(d)), task)
	if errors.Is(err, gocron.ErrOneTimeJobStartDateTimePast) {
		job, err = g.scheduler.NewJob(gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), task)
	}
	if err != nil {
		close(ready)
		g.logger.Error("gocron timer rejected, using fallback timer", "error", commonErrors.InfraError(err))
		return g.fallback.SetTimer(fn, d)
	}

	id = core.TimerID(job.ID().String())
	g.mu.Lock()
	g.jobs[id] = job.ID()
	g.mu.Unlock()
	close(ready)
	return id
}

func (g *Gocron) startAt(d time.Duration) gocron.OneTimeJobStartAtOption {
	if d <= 0 {
		return gocron.OneTimeJobStartImmediately()
	}
	return gocron.OneTimeJobStartDateTime(g.clock.Now().Add(d))
}

func (g *Gocron) ClearTimer(id core.TimerID) {
	g.mu.Lock()
	jobID, ok := g.jobs[id]
	delete(g.jobs, id)
	g.mu.Unlock()
	if !ok {
		g.fallback.ClearTimer(id)
		return
	}
	g.forget(jobID)
}

func (g *Gocron) forget(jobID uuid.UUID) {
	if err := g.scheduler.RemoveJob(jobID); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		g.logger.Debug("failed to remove gocron job", "job_id", jobID, "error", err)
	}
}

// Pending returns the number of armed timers.
func (g *Gocron) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.jobs) + g.fallback.Pending()
}

// Close shuts the gocron scheduler down. Pending timers never fire afterwards.
func (g *Gocron) Close() error {
	if err := g.scheduler.Shutdown(); err != nil {
		return commonErrors.InfraError(err)
	}
	return nil
}
