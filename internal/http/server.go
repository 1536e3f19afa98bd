// Package http serves the sessionparse HTTP API.
//
// Routes:
//
//	GET  /health         liveness and telemetry health
//	GET  /metrics        Prometheus metrics
//	POST /api/v1/parse   parse a JSONL request body into a session
//	POST /api/v1/batch   parse files or a directory on the server host
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/logging"
	"github.com/fyrsmithlabs/sessionparse/internal/sanitize"
	"github.com/fyrsmithlabs/sessionparse/internal/telemetry"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
)

// HealthReporter reports telemetry health.
type HealthReporter interface {
	Health() telemetry.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxUploadMB bounds POST /api/v1/parse bodies.
	MaxUploadMB int64

	// AllowedRoot restricts /api/v1/batch to paths under it. Empty allows
	// any path without a ".." segment.
	AllowedRoot string
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	parser   *parser.Parser
	observer parser.Observer
	health   HealthReporter
	meter    metric.Meter
	logger   *zap.Logger
	config   *Config
}

// Option configures a Server.
type Option func(*Server)

// WithObserver reports batch progress from /api/v1/batch to o.
func WithObserver(o parser.Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithHealthReporter includes telemetry health in /health.
func WithHealthReporter(h HealthReporter) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMeter records HTTP metrics on meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(s *Server) {
		s.meter = meter
	}
}

// NewServer creates a server around p.
func NewServer(p *parser.Parser, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("parser cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:        "127.0.0.1",
			Port:        9191,
			MaxUploadMB: 64,
		}
	}

	s := &Server{
		parser: p,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(NewHTTPMetrics(s.meter, logger).MetricsMiddleware())

	s.echo = e
	s.registerRoutes()
	return s, nil
}

// requestLogger carries the request id on the request context so parser
// logs for the request can be correlated with the access log.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			s.logger.Info("http request", append(logging.ContextFields(ctx),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)...)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/parse", s.handleParse, middleware.BodyLimit(fmt.Sprintf("%dM", s.config.MaxUploadMB)))
	v1.POST("/batch", s.handleBatch)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// BatchRequest is the request body for POST /api/v1/batch. Exactly one of
// Paths and Directory must be set.
type BatchRequest struct {
	Paths     []string `json:"paths"`
	Directory string   `json:"directory"`
}

// ErrorResponse is the body of a failed parse.
type ErrorResponse struct {
	Error parser.ErrorContext `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.health != nil {
		h := s.health.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleParse parses the request body. The source query parameter names the
// upload in the session metadata.
func (s *Server) handleParse(c echo.Context) error {
	source := sanitize.SourceName(c.QueryParam("source"), "upload")

	sess, err := s.parser.ParseReader(c.Request().Context(), c.Request().Body, source)
	if err != nil {
		// The body limit surfaces as a read error once the reader is drained.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		ec := parser.NewErrorContext(source, err)
		s.logger.Warn("parse request failed", append(logging.ContextFields(c.Request().Context()),
			zap.String("source", source),
			zap.String("kind", string(ec.Kind)),
			zap.Error(err))...)
		return c.JSON(statusFor(ec.Kind), ErrorResponse{Error: ec})
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid batch request", append(logging.ContextFields(c.Request().Context()), zap.Error(err))...)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	hasPaths := len(req.Paths) > 0
	hasDir := strings.TrimSpace(req.Directory) != ""
	if hasPaths == hasDir {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of paths or directory is required")
	}

	if hasPaths {
		for i, path := range req.Paths {
			clean, err := s.checkPath(path)
			if err != nil {
				return err
			}
			req.Paths[i] = clean
		}
	} else {
		clean, err := s.checkPath(req.Directory)
		if err != nil {
			return err
		}
		req.Directory = clean
	}

	var opts []parser.BatchOption
	if s.observer != nil {
		opts = append(opts, parser.WithObserver(s.observer))
	}
	batch := parser.NewBatch(s.parser, opts...)
	ctx := c.Request().Context()

	if hasPaths {
		return c.JSON(http.StatusOK, batch.ParseFilesWithReport(ctx, req.Paths))
	}

	result, err := batch.ParseDirectoryWithReport(ctx, req.Directory)
	if err != nil {
		ec := parser.NewErrorContext(req.Directory, err)
		return c.JSON(statusFor(ec.Kind), ErrorResponse{Error: ec})
	}
	return c.JSON(http.StatusOK, result)
}

// checkPath validates a client-supplied path against the allowed root.
func (s *Server) checkPath(path string) (string, error) {
	clean, err := sanitize.ValidatePath(path, s.config.AllowedRoot)
	if err == nil {
		return clean, nil
	}
	s.logger.Warn("rejected batch path", zap.String("path", path), zap.Error(err))
	if errors.Is(err, sanitize.ErrEmptyPath) {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return "", echo.NewHTTPError(http.StatusForbidden, err.Error())
}

// statusFor maps a failure kind to an HTTP status.
func statusFor(kind parser.Kind) int {
	switch kind {
	case parser.KindMemoryLimit:
		return http.StatusRequestEntityTooLarge
	case parser.KindFileNotFound:
		return http.StatusNotFound
	case parser.KindTooManyErrors, parser.KindJSON, parser.KindInvalidFormat,
		parser.KindMissingField, parser.KindInvalidTimestamp, parser.KindUnknownRole:
		return http.StatusUnprocessableEntity
	case parser.KindIO:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
