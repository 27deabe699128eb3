package zeit

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"

	"github.com/Deepreo/zeit/config"
	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
	"github.com/Deepreo/zeit/modules/auth"
	"github.com/Deepreo/zeit/modules/clock"
	"github.com/Deepreo/zeit/modules/event"
	"github.com/Deepreo/zeit/modules/scheduler"
	"github.com/Deepreo/zeit/modules/servers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Application struct {
	cfg         *config.Config
	logger      *slog.Logger
	clock       core.Clock
	scheduler   *scheduler.Scheduler
	bus         *event.InMemory
	server      *servers.HttpServer
	tokens      *auth.JWTTokenProvider
	tracer      trace.TracerProvider
	unsubscribe func()
}

type Option func(*Application)

// WithLogger overrides the logger built from the log section.
func WithLogger(logger *slog.Logger) Option {
	return func(app *Application) {
		app.logger = logger
	}
}

// WithTracerProvider sets the provider used by the scheduler tracing middleware.
// Without it the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(app *Application) {
		app.tracer = tp
	}
}

func New(cfg *config.Config, options ...Option) (*Application, error) {
	app := &Application{cfg: cfg}
	for _, option := range options {
		option(app)
	}

	if app.logger == nil {
		logger, err := cfg.Log.NewLogger(os.Stdout)
		if err != nil {
			return nil, err
		}
		app.logger = logger
	}

	clk, err := clock.New(cfg.Clock, app.logger.With("component", "clock"))
	if err != nil {
		return nil, err
	}
	app.clock = clk

	schedulerOptions := []scheduler.Option{
		scheduler.WithLogger(app.logger.With("component", "scheduler")),
	}
	if cfg.Scheduler.Tracing {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		schedulerOptions = append(schedulerOptions, scheduler.WithMiddleware(scheduler.TracingMiddleware(app.tracer)))
	}
	if cfg.Scheduler.Logging {
		schedulerOptions = append(schedulerOptions, scheduler.WithMiddleware(scheduler.LoggingMiddleware(app.logger.With("component", "scheduler"), clk)))
	}
	app.scheduler = scheduler.New(clk, schedulerOptions...)

	if cfg.Events.Enabled {
		bus, err := event.NewInMemory(app.logger.With("component", "events"), cfg.Events, event.WithClock(clk))
		if err != nil {
			_ = app.closeClock()
			return nil, err
		}
		app.bus = bus
		app.unsubscribe = app.scheduler.Subscribe(bus)
	}

	if cfg.Server.Enabled {
		if err := app.buildServer(); err != nil {
			_ = app.closeClock()
			return nil, err
		}
	}

	app.logger.Info("zeit initialized", "clock", cfg.Clock.Kind, "events", cfg.Events.Enabled, "server", cfg.Server.Enabled, "auth", cfg.Auth.Enabled)
	return app, nil
}

func (app *Application) buildServer() error {
	server, err := servers.NewHttpServer(servers.WithConfig(&app.cfg.Server))
	if err != nil {
		return err
	}
	server.Use(servers.LoggingMiddleware(app.logger.With("component", "server")))

	if app.cfg.Auth.Enabled {
		tokens, err := auth.NewJWTTokenProvider(app.cfg.Auth.JWT)
		if err != nil {
			return err
		}
		app.tokens = tokens
		server.Mount(servers.SchedulesPath, auth.Guard(tokens), servers.SchedulePermissions())
	}
	servers.RegisterScheduleRoutes(server, app.scheduler)
	app.server = server
	return nil
}

func (app *Application) Scheduler() *scheduler.Scheduler {
	return app.scheduler
}

func (app *Application) Clock() core.Clock {
	return app.clock
}

// Events returns the event bus, or nil when events are disabled. Subscribe before Run.
func (app *Application) Events() *event.InMemory {
	return app.bus
}

// Server returns the admin server, or nil when it is disabled.
func (app *Application) Server() *servers.HttpServer {
	return app.server
}

// Tokens returns the admin API token provider, or nil when auth is disabled.
func (app *Application) Tokens() *auth.JWTTokenProvider {
	return app.tokens
}

// Run starts the event bus and the admin server and blocks until ctx is done or the
// server stops with an error.
func (app *Application) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	// Start Event Bus
	if app.bus != nil {
		go func() {
			if err := app.bus.Run(ctx); err != nil {
				app.logger.Error("Event bus failed", "error", err)
			}
		}()
	}
	if app.server != nil {
		go func() {
			app.logger.Info("admin server listening", "address", app.server.Address())
			serverErr <- app.server.Run()
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		if err != nil {
			return errors.InfraError(err)
		}
		return nil
	}
}

// Shutdown cancels every active schedule and releases the server, bus and clock.
func (app *Application) Shutdown(ctx context.Context) error {
	cancelled := app.scheduler.CancelAll()
	app.logger.Info("shutting down", "cancelled_schedules", len(cancelled))

	var errs []error
	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			errs = append(errs, errors.InfraError(err))
		}
	}
	if app.bus != nil {
		app.unsubscribe()
		if err := app.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := app.closeClock(); err != nil {
		errs = append(errs, errors.InfraError(err))
	}
	return stdErrors.Join(errs...)
}

func (app *Application) closeClock() error {
	if closer, ok := app.clock.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
