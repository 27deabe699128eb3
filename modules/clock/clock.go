package clock

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
)

const (
	KindReal   = "real"
	KindStub   = "stub"
	KindGocron = "gocron"
)

type Config struct {
	Kind     string     `mapstructure:"kind"`
	Location string     `mapstructure:"location"`
	Stub     StubConfig `mapstructure:"stub"`
}

type StubConfig struct {
	Start        time.Time     `mapstructure:"start"`
	TickSize     time.Duration `mapstructure:"tick_size"`
	ImplicitTick bool          `mapstructure:"implicit_tick"`
}

// New builds the clock selected by cfg.Kind. Callers should close the result
// when it implements io.Closer.
func New(cfg Config, logger *slog.Logger) (core.Clock, error) {
	switch cfg.Kind {
	case "", KindReal:
		return NewReal(), nil
	case KindStub:
		options := []StubOption{WithImplicitTick(cfg.Stub.ImplicitTick), WithTickSize(cfg.Stub.TickSize)}
		if !cfg.Stub.Start.IsZero() {
			options = append(options, WithStart(cfg.Stub.Start))
		}
		return NewStub(options...), nil
	case KindGocron:
		options := []GocronOption{}
		if logger != nil {
			options = append(options, WithGocronLogger(logger))
		}
		if cfg.Location != "" {
			loc, err := time.LoadLocation(cfg.Location)
			if err != nil {
				return nil, errors.ConfigurationError(fmt.Errorf("invalid clock location %q: %w", cfg.Location, err))
			}
			options = append(options, WithLocation(loc))
		}
		return NewGocron(options...)
	default:
		return nil, errors.ConfigurationError(fmt.Errorf("unknown clock kind %q", cfg.Kind))
	}
}
