package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment variable read by the loader.
	EnvPrefix = "SESSIONPARSE_"

	maxConfigFileSize = 1024 * 1024
)

// nestedSections lists sub-sections whose environment variables map one
// level deeper, e.g. LOGGING_SAMPLING_TICK -> logging.sampling.tick.
var nestedSections = map[string][]string{
	"logging":   {"output", "sampling", "caller", "stacktrace", "redaction"},
	"telemetry": {"sampling", "metrics", "shutdown"},
}

// Load loads configuration from the default file, if present, and the
// environment.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from configPath, then overrides it with
// environment variables. An empty configPath reads
// ~/.config/sessionparse/config.yaml when it exists. Files ending in .toml
// are parsed as TOML, everything else as YAML.
//
// Environment variables drop the SESSIONPARSE_ prefix, are lowercased and
// split on the first underscore:
//
//	SESSIONPARSE_PARSER_MAX_CONCURRENT_FILES -> parser.max_concurrent_files
//	SESSIONPARSE_RECOVERY_SKIP_MALFORMED_LINES -> recovery.skip_malformed_lines
//	SESSIONPARSE_TELEMETRY_METRICS_ENABLED -> telemetry.metrics.enabled
//
// # Security Considerations
//
// Config files larger than 1MB, or writable by group or others, are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = path
	}

	if err := loadFile(k, configPath); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/sessionparse/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sessionparse", "config.yaml"), nil
}

func loadFile(k *koanf.Koanf, path string) error {
	// Validate through the open descriptor so the checked file is the one read.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var p koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		p = TOMLParser()
	}
	if err := k.Load(rawbytes.Provider(content), p); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// envKey maps SESSIONPARSE_SECTION_FIELD to section.field.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, sub := range nestedSections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// applyDefaults repairs zero values an override may leave behind.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = def.Events.SubjectPrefix
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = def.Watch.Debounce
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
}
