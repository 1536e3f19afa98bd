package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/sessionparse/internal/http"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parsing HTTP API",
		Long: `Start the HTTP API. Runs until interrupted, then shuts down gracefully.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/v1/parse   JSONL body, returns the session
  POST /api/v1/batch   {"paths": [...]} or {"directory": "..."}`,
		Args: cobra.NoArgs,
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.http_host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.http_port)")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := a.logger.Underlying()

		if host != "" {
			a.cfg.Server.Host = host
		}
		if port != 0 {
			a.cfg.Server.Port = port
		}

		p, err := a.newParser("")
		if err != nil {
			return err
		}

		pub, closePub, err := a.publisher(ctx)
		if err != nil {
			return err
		}
		defer closePub()

		opts := []httpserver.Option{httpserver.WithHealthReporter(a.tel)}
		if pub != nil {
			opts = append(opts, httpserver.WithObserver(pub))
		}

		srv, err := httpserver.NewServer(p, logger, &httpserver.Config{
			Host:        a.cfg.Server.Host,
			Port:        a.cfg.Server.Port,
			MaxUploadMB: a.cfg.Server.MaxUploadMB,
			AllowedRoot: a.cfg.Server.AllowedRoot,
		}, opts...)
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		return nil
	})
	return cmd
}
