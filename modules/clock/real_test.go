package clock

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Deepreo/zeit/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReal_FakeClockwork(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	c := NewReal(WithClockwork(fc))

	assert.Equal(t, fc.Now(), c.Now())
	assert.Equal(t, time.Minute, c.DurationUntil(c.TimeIn(time.Minute)))

	fired := make(chan struct{})
	c.SetTimer(func() { close(fired) }, time.Second)
	assert.Equal(t, 1, c.Pending())

	fc.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Timer did not fire after advancing the clock")
	}
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestReal_ClearTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := NewReal(WithClockwork(fc))

	fired := make(chan struct{}, 1)
	id := c.SetTimer(func() { fired <- struct{}{} }, time.Second)
	c.ClearTimer(id)
	c.ClearTimer(id)
	assert.Equal(t, 0, c.Pending())

	fc.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("Cleared timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReal_WallClock(t *testing.T) {
	c := NewReal()
	done := make(chan struct{})
	c.SetTimer(func() { close(done) }, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timer did not run in time")
	}
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("Default is real", func(t *testing.T) {
		c, err := New(Config{}, logger)
		require.NoError(t, err)
		assert.IsType(t, &Real{}, c)
	})

	t.Run("Stub from config", func(t *testing.T) {
		start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		c, err := New(Config{Kind: KindStub, Stub: StubConfig{Start: start, TickSize: time.Minute}}, logger)
		require.NoError(t, err)
		stub, ok := c.(*Stub)
		require.True(t, ok)
		assert.Equal(t, start, stub.Now())
		assert.Equal(t, time.Minute, stub.TickSize())
	})

	t.Run("Unknown kind", func(t *testing.T) {
		_, err := New(Config{Kind: "sundial"}, logger)
		require.Error(t, err)
		assert.Equal(t, errors.ERR_CONFIGURATION, errors.GetLevel(err))
	})

	t.Run("Invalid location", func(t *testing.T) {
		_, err := New(Config{Kind: KindGocron, Location: "Mars/Olympus"}, logger)
		require.Error(t, err)
		assert.Equal(t, errors.ERR_CONFIGURATION, errors.GetLevel(err))
	})
}
