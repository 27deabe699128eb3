package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Deepreo/zeit/errors"
	"github.com/Deepreo/zeit/modules/auth"
	"github.com/Deepreo/zeit/modules/clock"
	"github.com/Deepreo/zeit/modules/event"
	"github.com/Deepreo/zeit/modules/servers"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "ZEIT"

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SchedulerConfig struct {
	// Tracing wraps every invocation in an OpenTelemetry span.
	Tracing bool `mapstructure:"tracing"`
	// Logging logs every invocation at debug level.
	Logging bool `mapstructure:"logging"`
}

type Config struct {
	Log       LogConfig                `mapstructure:"log"`
	Clock     clock.Config             `mapstructure:"clock"`
	Events    event.Config             `mapstructure:"events"`
	Server    servers.HttpServerConfig `mapstructure:"server"`
	Auth      auth.Config              `mapstructure:"auth"`
	Scheduler SchedulerConfig          `mapstructure:"scheduler"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("clock.kind", clock.KindReal)
	v.SetDefault("clock.location", "")
	v.SetDefault("clock.stub.tick_size", clock.DefaultTickSize)
	v.SetDefault("clock.stub.implicit_tick", false)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.topic_prefix", event.DefaultTopicPrefix)
	v.SetDefault("events.output_buffer", 64)
	v.SetDefault("events.signals_handler", false)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", servers.DefaultHost)
	v.SetDefault("server.port", servers.DefaultPort)
	v.SetDefault("server.read_timeout", servers.DefaultReadTimeout.String())
	v.SetDefault("server.write_timeout", servers.DefaultWriteTimeout.String())
	v.SetDefault("server.allowed_origins", servers.DefaultAllowedOrigins)
	v.SetDefault("server.features.request_id.enabled", true)
	v.SetDefault("server.features.health_check.enabled", true)
	v.SetDefault("server.features.elastic_apm.enabled", false)

	jwt := auth.DefaultJWTConfig()
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt.secret_key", "")
	v.SetDefault("auth.jwt.expiration", jwt.Expiration)
	v.SetDefault("auth.jwt.issuer", jwt.Issuer)

	v.SetDefault("scheduler.tracing", false)
	v.SetDefault("scheduler.logging", false)
}

// Load reads the configuration file at path, when given, and overlays ZEIT_* environment
// variables such as ZEIT_CLOCK_KIND.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are invisible to AutomaticEnv.
	_ = v.BindEnv("clock.stub.start")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.ConfigurationError(fmt.Errorf("read config %s: %w", path, err))
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, errors.ConfigurationError(fmt.Errorf("decode config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Clock.Kind {
	case clock.KindReal, clock.KindStub, clock.KindGocron:
	default:
		return errors.ConfigurationError(fmt.Errorf("unknown clock kind %q", c.Clock.Kind))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.ConfigurationError(err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.ConfigurationError(fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if err := c.Auth.Validate(); err != nil {
		return errors.ConfigurationError(fmt.Errorf("auth: %w", err))
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// NewLogger builds the application logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, errors.ConfigurationError(err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
