package zeit_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Deepreo/zeit"
	"github.com/Deepreo/zeit/config"
	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/modules/auth"
	"github.com/Deepreo/zeit/modules/clock"
	"github.com/Deepreo/zeit/modules/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Clock.Kind = clock.KindStub
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplication_SchedulesOnConfiguredClock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Logging = true
	cfg.Scheduler.Tracing = true

	app, err := zeit.New(cfg, zeit.WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Nil(t, app.Events())
	assert.Nil(t, app.Server())

	stub, ok := app.Clock().(*clock.Stub)
	require.True(t, ok)

	calls := 0
	id, err := app.Scheduler().Execute(func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	}).After(time.Second).AndRepeatAfter(time.Second).Start()
	require.NoError(t, err)

	stub.Tick(3 * time.Second)
	assert.Equal(t, 3, calls)

	require.NoError(t, app.Shutdown(context.Background()))
	_, active := app.Scheduler().ActiveSchedule(id)
	assert.False(t, active, "shutdown cancels active schedules")
}

func TestApplication_EventsAndRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.Enabled = true

	app, err := zeit.New(cfg, zeit.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NotNil(t, app.Events())

	finished := make(chan event.Message, 1)
	app.Events().Subscribe(core.EventFinish, func(ctx context.Context, m event.Message) error {
		finished <- m
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-app.Events().Running():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event bus")
	}

	id, err := app.Scheduler().Execute(func(ctx context.Context) (any, error) {
		return nil, nil
	}).Named("report").Once().Start()
	require.NoError(t, err)
	app.Clock().(*clock.Stub).Tick(0)

	select {
	case m := <-finished:
		assert.Equal(t, id, m.State.ID)
		assert.Equal(t, "report", m.State.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for finish event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, app.Shutdown(context.Background()))
}

func TestApplication_AdminServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = true
	cfg.Auth.Enabled = true
	cfg.Auth.JWT.SecretKey = "0123456789abcdef0123456789abcdef"

	app, err := zeit.New(cfg, zeit.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NotNil(t, app.Server())
	require.NotNil(t, app.Tokens())

	_, err = app.Scheduler().Execute(func(ctx context.Context) (any, error) {
		return nil, nil
	}).After(time.Hour).Start()
	require.NoError(t, err)

	token, err := app.Tokens().Generate("ops", auth.PermissionSchedulesRead, auth.PermissionSchedulesCancel)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
	resp, err := app.Server().GetApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/api/schedules", nil)
	req.Header.Set("Authorization", auth.CreateBearerToken(token))
	resp, err = app.Server().GetApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, app.Scheduler().ActiveSchedules())

	assert.NoError(t, app.Shutdown(context.Background()))
}

func TestApplication_InvalidClock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Clock.Kind = "sundial"

	_, err := zeit.New(cfg, zeit.WithLogger(quietLogger()))
	assert.Error(t, err)
}
