package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

func newParseCmd(a *app) *cobra.Command {
	var (
		summary bool
		source  string
	)

	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Parse one conversation log",
		Long: `Parse one JSONL conversation log and print the session as JSON.

Examples:
  # Parse a file
  sessionparse parse ~/.claude/projects/app/session.jsonl

  # Parse from stdin
  cat session.jsonl | sessionparse parse - --source session.jsonl

  # Print a summary instead of JSON
  sessionparse parse --summary session.jsonl`,
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "print a summary instead of JSON")
	cmd.Flags().StringVar(&source, "source", "stdin", "source name recorded for stdin input")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			sess *session.Session
			err  error
		)
		if args[0] == "-" {
			p, perr := a.newParser("")
			if perr != nil {
				return perr
			}
			sess, err = p.ParseReader(ctx, cmd.InOrStdin(), source)
		} else {
			p, perr := a.newParser(filepath.Dir(args[0]))
			if perr != nil {
				return perr
			}
			sess, err = p.ParseFile(ctx, args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		if summary {
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderSession(sess))
			return err
		}
		return writeJSON(cmd.OutOrStdout(), sess)
	})
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
