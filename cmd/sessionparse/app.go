package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/config"
	"github.com/fyrsmithlabs/sessionparse/internal/events"
	"github.com/fyrsmithlabs/sessionparse/internal/logging"
	"github.com/fyrsmithlabs/sessionparse/internal/secrets"
	"github.com/fyrsmithlabs/sessionparse/internal/telemetry"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
)

// app holds the dependencies shared by every command. They are built once
// per invocation by setup and released by close.
type app struct {
	configPath string

	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	metrics *parser.Metrics
}

// runE wraps a command body with dependency setup and teardown. The body
// sees the logger through logging.FromContext on the command context.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.setup(cmd.Context()); err != nil {
			return err
		}
		defer a.close()
		cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
		return fn(cmd, args)
	}
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.LoadWithFile(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(&cfg.Logging, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	tel, err := telemetry.New(ctx, &cfg.Telemetry, telemetry.WithLogger(logger.Underlying()))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel

	// Rebuild on the telemetry log provider so records also go to the
	// collector when logging.output.otel is set.
	if lp := tel.LoggerProvider(); lp != nil && cfg.Logging.Output.OTEL {
		otelLogger, err := logging.NewLogger(&cfg.Logging, lp)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		_ = logger.Sync()
		a.logger = otelLogger
	}
	if h := tel.Health(); h.Degraded {
		a.logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}
	a.metrics = parser.NewMetrics()
	return nil
}

func (a *app) close() {
	if a.tel != nil {
		if err := a.tel.Shutdown(context.Background()); err != nil {
			a.logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync on shutdown
	}
}

// newParser builds a parser for logs under dir. When secret redaction is
// enabled the configured allowlists are merged with dir's project allowlist.
func (a *app) newParser(dir string) (*parser.Parser, error) {
	opts := []parser.Option{
		parser.WithLogger(a.logger.Underlying()),
		parser.WithMetrics(a.metrics),
	}

	if a.cfg.Extraction.RedactSecrets {
		files := append([]string{}, a.cfg.Secrets.AllowlistFiles...)
		if dir != "" {
			files = append(files, filepath.Join(dir, secrets.ProjectAllowlistFile))
		}
		allowlist, err := secrets.LoadAllowlists(files...)
		if err != nil {
			return nil, fmt.Errorf("failed to load secret allowlists: %w", err)
		}
		redactor, err := secrets.New(allowlist, secrets.WithLogger(a.logger.Underlying()))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secret redaction: %w", err)
		}
		opts = append(opts, parser.WithRedactor(redactor))
	}

	return parser.New(a.cfg.ParserConfig(), opts...), nil
}

// publisher connects to NATS when events are enabled. It returns a nil
// publisher and a no-op cleanup otherwise.
func (a *app) publisher(ctx context.Context) (*events.Publisher, func(), error) {
	if !a.cfg.Events.Enabled {
		return nil, func() {}, nil
	}

	nc, err := events.Connect(a.cfg.Events.URL, a.cfg.Events.Token.Value())
	if err != nil {
		return nil, nil, err
	}
	logging.FromContext(ctx).Info(ctx, "publishing batch events",
		zap.String("url", a.cfg.Events.URL),
		zap.String("subject_prefix", a.cfg.Events.SubjectPrefix))

	pub := events.NewPublisher(nc,
		events.WithLogger(a.logger.Underlying()),
		events.WithSubjectPrefix(a.cfg.Events.SubjectPrefix))
	return pub, nc.Close, nil
}
