package servers

import (
	"context"
	"fmt"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"go.elastic.co/apm/module/apmfiber/v2"
	"go.elastic.co/apm/v2"
)

const (
	DefaultReadTimeout     = 3 * time.Second
	DefaultWriteTimeout    = 3 * time.Second
	DefaultServerHeader    = "Fiber"
	DefaultBodyLimit       = 4 * 1024 * 1024 // 4 MB
	DefaultPort            = "8080"
	DefaultAllowedOrigins  = "*"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultHost            = "localhost"
)

type HttpServer struct {
	app         *fiber.App
	cfg         *HttpServerConfig
	middlewares []core.HandlerMiddleware
}

var _ core.Server = (*HttpServer)(nil)

type HttpServerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	ServerHeader   string `mapstructure:"server_header"`
	BodyLimit      int    `mapstructure:"body_limit"`
	ErrorHandler   fiber.ErrorHandler
	Port           string   `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	AllowedOrigins string   `mapstructure:"allowed_origins"`
	Features       Features `mapstructure:"features"`
}

type Features struct {
	RequestID   RequestID   `mapstructure:"request_id"`
	Proxy       Proxy       `mapstructure:"proxy"`
	RateLimit   RateLimit   `mapstructure:"rate_limit"`
	HealthCheck HealthCheck `mapstructure:"health_check"`
	Etag        Etag        `mapstructure:"etag"`
	ElasticAPM  ElasticAPM  `mapstructure:"elastic_apm"`
}
type Etag struct {
	Enabled bool `mapstructure:"enabled"`
}

type ElasticAPM struct {
	Enabled bool `mapstructure:"enabled"`
}

type RequestID struct {
	Enabled bool `mapstructure:"enabled"`
}

type Proxy struct {
	Enabled        bool     `mapstructure:"enabled"`
	ProxyHeader    string   `mapstructure:"proxy_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type RateLimit struct {
	Enabled    bool   `mapstructure:"enabled"`
	Max        int    `mapstructure:"max"`
	Expiration string `mapstructure:"expiration"`
}

type HealthCheck struct {
	Enabled bool `mapstructure:"enabled"`
}

func WithConfig(cfg *HttpServerConfig) func(*HttpServerConfig) {
	return func(s *HttpServerConfig) {
		s.Enabled = cfg.Enabled
		if cfg.ReadTimeout != "" {
			s.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout != "" {
			s.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.ServerHeader != "" {
			s.ServerHeader = cfg.ServerHeader
		}
		if cfg.BodyLimit != 0 {
			s.BodyLimit = cfg.BodyLimit
		}
		if cfg.ErrorHandler != nil {
			s.ErrorHandler = cfg.ErrorHandler
		}
		if cfg.Port != "" {
			s.Port = cfg.Port
		}
		if cfg.AllowedOrigins != "" {
			s.AllowedOrigins = cfg.AllowedOrigins
		}
		s.Features = cfg.Features
		if cfg.Host != "" {
			s.Host = cfg.Host
		}
	}
}

func NewHttpServer(options ...func(*HttpServerConfig)) (*HttpServer, error) {
	cfg := &HttpServerConfig{
		ReadTimeout:    DefaultReadTimeout.String(),
		WriteTimeout:   DefaultWriteTimeout.String(),
		ServerHeader:   DefaultServerHeader,
		BodyLimit:      DefaultBodyLimit,
		Port:           DefaultPort,
		AllowedOrigins: DefaultAllowedOrigins,
		Host:           DefaultHost,
	}
	for _, option := range options {
		option(cfg)
	}
	fiberConfig, err := buildFiberConfig(cfg)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Errorf("invalid server configuration: %w", err))
	}

	app := fiber.New(fiberConfig)

	server := &HttpServer{
		app: app,
		cfg: cfg,
	}
	// Middleware'leri burada uygula
	server.applyMiddlewares()
	return server, nil
}

func (s *HttpServer) applyMiddlewares() {
	s.app.Use(recover.New())
	s.app.Use(helmet.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  s.cfg.AllowedOrigins,
		AllowMethods:  "GET,DELETE,OPTIONS",
		AllowHeaders:  "Accept, Authorization, Content-Type",
		ExposeHeaders: "Content-Length, X-Request-ID",
		AllowCredentials: func() bool {
			return s.cfg.AllowedOrigins != "*"
		}(),
		MaxAge: 300, // 5 minutes
	}))
	if s.cfg.Features.RequestID.Enabled {
		s.app.Use(requestid.New())
	}
	if s.cfg.Features.RateLimit.Enabled {
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.cfg.Features.RateLimit.Max,
			Expiration: rateLimitExpiration(s.cfg.Features.RateLimit.Expiration),
		}))
	}
	if s.cfg.Features.HealthCheck.Enabled {
		s.app.Use(healthcheck.New())
	}
	if s.cfg.Features.Etag.Enabled {
		s.app.Use(etag.New())
	}
	if s.cfg.Features.ElasticAPM.Enabled {
		s.app.Use(apmfiber.Middleware())
	}
}

func rateLimitExpiration(raw string) time.Duration {
	if raw == "" {
		return 60 * time.Second // Default to 1 minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func (s *HttpServer) GetApp() *fiber.App {
	return s.app
}

// Address returns the listen address, host-less behind a proxy.
func (s *HttpServer) Address() string {
	if s.cfg.Features.Proxy.Enabled {
		return fmt.Sprintf(":%s", s.cfg.Port)
	}
	return fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
}

func (s *HttpServer) Run() error {
	return s.app.Listen(s.Address())
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Use adds handler middlewares to endpoints registered from now on. The first one is outermost.
func (s *HttpServer) Use(middleware ...core.HandlerMiddleware) {
	s.middlewares = append(s.middlewares, middleware...)
}

// Mount attaches fiber handlers, such as an auth guard, to every route under prefix.
// Routes registered before Mount are not covered.
func (s *HttpServer) Mount(prefix string, handlers ...fiber.Handler) {
	args := make([]any, 0, len(handlers)+1)
	args = append(args, prefix)
	for _, h := range handlers {
		args = append(args, h)
	}
	s.app.Use(args...)
}

func buildFiberConfig(cfg *HttpServerConfig) (fiber.Config, error) {
	var config fiber.Config
	if cfg.ReadTimeout != "" {
		readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
		if err != nil {
			return fiber.Config{}, fmt.Errorf("invalid read_timeout: %s", cfg.ReadTimeout)
		}
		config.ReadTimeout = readTimeout
	} else {
		config.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout != "" {
		writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
		if err != nil {
			return fiber.Config{}, fmt.Errorf("invalid write_timeout: %s", cfg.WriteTimeout)
		}
		config.WriteTimeout = writeTimeout
	} else {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ServerHeader != "" {
		config.ServerHeader = cfg.ServerHeader
	} else {
		config.ServerHeader = DefaultServerHeader
	}
	if cfg.BodyLimit != 0 {
		config.BodyLimit = cfg.BodyLimit
	} else {
		config.BodyLimit = DefaultBodyLimit
	}
	if cfg.Features.Proxy.Enabled {
		if cfg.Features.Proxy.ProxyHeader != "" {
			config.ProxyHeader = cfg.Features.Proxy.ProxyHeader
		}
		if len(cfg.Features.Proxy.TrustedProxies) > 0 {
			config.EnableTrustedProxyCheck = true
			config.TrustedProxies = cfg.Features.Proxy.TrustedProxies
		}
	}
	if cfg.ErrorHandler != nil {
		config.ErrorHandler = cfg.ErrorHandler
	} else {
		config.ErrorHandler = ErrorHandler
	}
	return config, nil
}

func (s *HttpServer) applyHandlerMiddlewares(handler core.HandlerFunc) core.HandlerFunc {
	chain := handler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](chain)
	}
	return chain
}

func (s *HttpServer) Register(method, path string, handler core.HandlerFunc, reqFactory func() any) {
	handler = s.applyHandlerMiddlewares(handler)

	genHandler := func(c *fiber.Ctx) error {
		// 1. Create concrete request struct using factory
		req := reqFactory()

		// 2. Parse request
		if len(c.Body()) > 0 {
			if err := c.BodyParser(req); err != nil && !errors.Is(fiber.ErrUnprocessableEntity, err) {
				return writeError(c, errors.ValidationError(err))
			}
		}

		if err := c.ParamsParser(req); err != nil {
			return writeError(c, errors.ValidationError(err))
		}

		if err := c.QueryParser(req); err != nil {
			return writeError(c, errors.ValidationError(err))
		}

		if err := c.ReqHeaderParser(req); err != nil {
			return writeError(c, errors.ValidationError(err))
		}

		// 3. Validate request
		if validator, ok := req.(core.Request); ok {
			if err := validator.Validate(); err != nil {
				return writeError(c, errors.ValidationError(err))
			}
		}

		res, err := handler(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(core.BaseResponse[any]{Success: true, Data: res})
	}

	s.app.Add(method, path, genHandler)
}

// ErrorHandler renders errors that escape fiber handlers, such as the auth guard's,
// as a BaseResponse.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return writeError(c, err)
}

func writeError(c *fiber.Ctx, err error) error {
	resp := core.BaseResponse[any]{Success: false}

	var traceID string
	if tx := apm.TransactionFromContext(c.UserContext()); tx != nil {
		traceID = tx.TraceContext().Trace.String()
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		resp.Error = &core.APIError{Message: fiberErr.Message}
		return c.Status(fiberErr.Code).JSON(resp)
	}

	var extendErr *errors.ExtendError
	if !errors.As(err, &extendErr) {
		extendErr = errors.UnknownError(err)
	}
	resp.Error = &core.APIError{
		Code:    extendErr.Code,
		Details: extendErr.Metadata,
	}

	status := statusFor(extendErr.Level)
	if status >= fiber.StatusInternalServerError {
		// Only expose detailed message in logs, here we keep it safe
		resp.Error.Message = fiber.ErrInternalServerError.Message
		resp.Error.TraceID = traceID
		if resp.Error.Details == nil && traceID != "" {
			resp.Error.Details = "Internal server error please control logs with trace ID: " + traceID
		}
	} else {
		resp.Error.Message = extendErr.Error()
	}
	return c.Status(status).JSON(resp)
}

func statusFor(level errors.ErrorLevel) int {
	switch level {
	case errors.ERR_NOT_FOUND:
		return fiber.StatusNotFound
	case errors.ERR_VALIDATION, errors.ERR_CONFIGURATION:
		return fiber.StatusBadRequest
	case errors.ERR_AUTH:
		return fiber.StatusUnauthorized
	case errors.ERR_PERMISSION:
		return fiber.StatusForbidden
	case errors.ERR_INFRASTRUCTURE, errors.ERR_CALLBACK:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
