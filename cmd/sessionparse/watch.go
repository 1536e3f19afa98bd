package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/logging"
	"github.com/fyrsmithlabs/sessionparse/internal/watch"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// watchRecord is one line of watch output.
type watchRecord struct {
	Path       string               `json:"path"`
	Timestamp  time.Time            `json:"timestamp"`
	SessionID  string               `json:"session_id,omitempty"`
	Statistics *session.Statistics  `json:"statistics,omitempty"`
	Error      *parser.ErrorContext `json:"error,omitempty"`
}

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-parse conversation logs as they change",
		Long: `Watch a directory tree and re-parse each .jsonl file after it stops
changing. One JSON object is printed per re-parse. Stop with Ctrl-C.

Example:
  sessionparse watch ~/.claude/projects`,
		Args: cobra.ExactArgs(1),
	}

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root := args[0]

		p, err := a.newParser(root)
		if err != nil {
			return err
		}

		w, err := watch.New(root, p, watch.Config{
			Debounce: a.cfg.Watch.Debounce.Duration(),
			Rate:     a.cfg.Watch.Rate,
			Burst:    a.cfg.Watch.Burst,
		}, watch.WithLogger(a.logger.Underlying()))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()

		logging.FromContext(ctx).Info(ctx, "watching for changes", zap.String("root", root))

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case <-ctx.Done():
				return nil
			case r, ok := <-w.Results():
				if !ok {
					return nil
				}
				if err := enc.Encode(newWatchRecord(r)); err != nil {
					return fmt.Errorf("failed to encode output: %w", err)
				}
			}
		}
	})
	return cmd
}

func newWatchRecord(r watch.Result) watchRecord {
	rec := watchRecord{Path: r.Path, Timestamp: r.Timestamp}
	if r.Err != nil {
		ec := parser.NewErrorContext(r.Path, r.Err)
		rec.Error = &ec
		return rec
	}
	rec.SessionID = r.Session.ID
	rec.Statistics = &r.Session.Statistics
	return rec
}
