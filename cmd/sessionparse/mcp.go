package main

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/fyrsmithlabs/sessionparse/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve parsing tools over MCP on stdio",
		Long: `Run an MCP server on stdin/stdout for use by MCP clients. Logs go to stderr.

Tools:
  parse_session   parse one conversation log and summarize it
  parse_batch     parse files or a directory and report every outcome

Paths are restricted to server.allowed_root when it is set.`,
		Args: cobra.NoArgs,
	}

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := a.newParser("")
		if err != nil {
			return err
		}

		pub, closePub, err := a.publisher(ctx)
		if err != nil {
			return err
		}
		defer closePub()

		var opts []mcpserver.Option
		if pub != nil {
			opts = append(opts, mcpserver.WithObserver(pub))
		}

		srv, err := mcpserver.NewServer(&mcpserver.Config{
			Name:        "sessionparse",
			Version:     version,
			AllowedRoot: a.cfg.Server.AllowedRoot,
			Logger:      a.logger.Underlying(),
		}, p, opts...)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	})
	return cmd
}
