// Package mcp exposes session parsing as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the parser directly. Tools:
//
//	parse_session  parse one conversation log and summarize it
//	parse_batch    parse files or a directory and report every outcome
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "sessionparse")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// AllowedRoot restricts tool paths to this directory. Empty allows any
	// path without a ".." segment.
	AllowedRoot string

	Logger *zap.Logger
}

// DefaultConfig returns defaults with no path restriction.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sessionparse",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// Server serves parsing tools over MCP.
type Server struct {
	mcp         *mcp.Server
	parser      *parser.Parser
	observer    parser.Observer
	allowedRoot string
	logger      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithObserver reports parse_batch progress to o.
func WithObserver(o parser.Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// NewServer creates a server around p and registers its tools.
func NewServer(cfg *Config, p *parser.Parser, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if p == nil {
		return nil, errors.New("parser is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		parser:      p,
		allowedRoot: cfg.AllowedRoot,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
