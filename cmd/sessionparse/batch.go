package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
)

// errBatchFailed is returned by batch --strict when any file failed.
var errBatchFailed = errors.New("one or more files failed to parse")

func newBatchCmd(a *app) *cobra.Command {
	var (
		dir     string
		summary bool
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Parse many conversation logs concurrently",
		Long: `Parse the given files, or every .jsonl file under --dir, and print the
batch result as JSON. Files that fail are reported alongside the sessions that
parsed. When events are enabled, progress is published to NATS.

Examples:
  # Parse every log under a directory
  sessionparse batch --dir ~/.claude/projects

  # Parse specific files and print a summary table
  sessionparse batch --summary a.jsonl b.jsonl`,
	}

	cmd.Flags().StringVar(&dir, "dir", "", "parse every .jsonl file under this directory")
	cmd.Flags().BoolVar(&summary, "summary", false, "print a summary table instead of JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any file fails")

	cmd.Args = func(cmd *cobra.Command, args []string) error {
		if (dir == "") == (len(args) == 0) {
			return errors.New("provide either files or --dir")
		}
		return nil
	}

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := a.newParser(dir)
		if err != nil {
			return err
		}

		pub, closePub, err := a.publisher(ctx)
		if err != nil {
			return err
		}
		defer closePub()

		var opts []parser.BatchOption
		if pub != nil {
			opts = append(opts, parser.WithObserver(pub))
		}
		batch := parser.NewBatch(p, opts...)

		var result *parser.BatchParsingResult
		if dir != "" {
			result, err = batch.ParseDirectoryWithReport(ctx, dir)
			if err != nil {
				return fmt.Errorf("failed to parse directory %s: %w", dir, err)
			}
		} else {
			result = batch.ParseFilesWithReport(ctx, args)
		}

		if summary {
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderBatch(result))
		} else {
			err = writeJSON(cmd.OutOrStdout(), result)
		}
		if err != nil {
			return err
		}

		if strict && len(result.Failed) > 0 {
			return fmt.Errorf("%w: %d of %d", errBatchFailed, len(result.Failed), result.Stats.FilesProcessed)
		}
		return nil
	})
	return cmd
}
