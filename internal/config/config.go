// Package config loads sessionparse configuration.
//
// Values come from three layers, highest precedence first:
//
//  1. Environment variables with the SESSIONPARSE_ prefix
//  2. A YAML or TOML file
//  3. Defaults from Default
//
// See LoadWithFile for the environment variable mapping.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/sessionparse/internal/logging"
	"github.com/fyrsmithlabs/sessionparse/internal/telemetry"
	"github.com/fyrsmithlabs/sessionparse/pkg/extract"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
)

// Config holds the complete sessionparse configuration.
type Config struct {
	Parser     ParserConfig          `koanf:"parser"`
	Recovery   parser.RecoveryConfig `koanf:"recovery"`
	Extraction extract.Config        `koanf:"extraction"`
	Logging    logging.Config        `koanf:"logging"`
	Telemetry  telemetry.Config      `koanf:"telemetry"`
	Server     ServerConfig          `koanf:"server"`
	Events     EventsConfig          `koanf:"events"`
	Watch      WatchConfig           `koanf:"watch"`
	Secrets    SecretsConfig         `koanf:"secrets"`
}

// ParserConfig holds file and batch limits.
type ParserConfig struct {
	MaxConcurrentFiles     int   `koanf:"max_concurrent_files"`
	MemoryLimitMB          int64 `koanf:"memory_limit_mb"`
	PerformanceThresholdMS int64 `koanf:"performance_threshold_ms"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// MaxUploadMB bounds POST /api/v1/parse bodies.
	MaxUploadMB int64 `koanf:"max_upload_mb"`

	// AllowedRoot restricts POST /api/v1/batch and the MCP tools to paths under it.
	AllowedRoot string `koanf:"allowed_root"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventsConfig holds NATS publishing configuration.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Token         Secret `koanf:"token"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is how long a file must be quiet before it is re-parsed.
	Debounce Duration `koanf:"debounce"`
	// Rate is the sustained number of re-parses per second.
	Rate  float64 `koanf:"rate"`
	Burst int     `koanf:"burst"`
}

// SecretsConfig lists allowlist files for secret redaction.
type SecretsConfig struct {
	AllowlistFiles []string `koanf:"allowlist_files"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	pc := parser.DefaultConfig()
	return &Config{
		Parser: ParserConfig{
			MaxConcurrentFiles:     pc.MaxConcurrentFiles,
			MemoryLimitMB:          pc.MemoryLimitMB,
			PerformanceThresholdMS: pc.PerformanceThresholdMS,
		},
		Recovery:   pc.Recovery,
		Extraction: pc.Extraction,
		Logging:    *logging.NewDefaultConfig(),
		Telemetry:  *telemetry.NewDefaultConfig(),
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
			MaxUploadMB:     64,
		},
		Events: EventsConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "sessionparse",
		},
		Watch: WatchConfig{
			Debounce: Duration(500 * time.Millisecond),
			Rate:     4,
			Burst:    8,
		},
	}
}

// ParserConfig returns the parser configuration assembled from the parser,
// recovery and extraction sections.
func (c *Config) ParserConfig() parser.Config {
	return parser.Config{
		MaxConcurrentFiles:     c.Parser.MaxConcurrentFiles,
		MemoryLimitMB:          c.Parser.MemoryLimitMB,
		PerformanceThresholdMS: c.Parser.PerformanceThresholdMS,
		Recovery:               c.Recovery,
		Extraction:             c.Extraction,
	}
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.ParserConfig().Validate(); err != nil {
		return fmt.Errorf("parser: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Server.validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Events.Enabled {
		if c.Events.URL == "" {
			return errors.New("events: url is required when events are enabled")
		}
		if c.Events.SubjectPrefix == "" {
			return errors.New("events: subject_prefix is required when events are enabled")
		}
	}
	if c.Watch.Rate <= 0 {
		return fmt.Errorf("watch: rate must be positive, got %g", c.Watch.Rate)
	}
	if c.Watch.Burst < 1 {
		return fmt.Errorf("watch: burst must be at least 1, got %d", c.Watch.Burst)
	}
	return nil
}

func (c ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	if c.MaxUploadMB < 1 {
		return errors.New("max_upload_mb must be at least 1")
	}
	return nil
}
