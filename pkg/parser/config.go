package parser

import (
	"errors"
	"runtime"

	"github.com/fyrsmithlabs/sessionparse/pkg/extract"
)

// Config holds parser configuration. It is copied into each Parser and never
// mutated afterwards.
type Config struct {
	// MaxConcurrentFiles caps parallel file parses in a batch. The effective
	// limit is also capped by the number of CPUs.
	MaxConcurrentFiles int

	// MemoryLimitMB rejects files larger than this many MiB before reading.
	MemoryLimitMB int64

	// PerformanceThresholdMS is advisory: slower parses are logged, never failed.
	PerformanceThresholdMS int64

	Recovery   RecoveryConfig
	Extraction extract.Config
}

// DefaultConfig returns the default parser configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentFiles:     min(runtime.NumCPU(), 16),
		MemoryLimitMB:          1024,
		PerformanceThresholdMS: 5000,
		Recovery:               DefaultRecoveryConfig(),
		Extraction:             extract.DefaultConfig(),
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.MaxConcurrentFiles < 1 {
		return errors.New("max_concurrent_files must be at least 1")
	}
	if c.MemoryLimitMB < 1 {
		return errors.New("memory_limit_mb must be at least 1")
	}
	if c.PerformanceThresholdMS < 0 {
		return errors.New("performance_threshold_ms must not be negative")
	}
	if c.Recovery.MaxConsecutiveErrors < 0 {
		return errors.New("max_consecutive_errors must not be negative")
	}
	return nil
}

// Concurrency returns the effective batch concurrency limit.
func (c Config) Concurrency() int {
	return max(1, min(runtime.NumCPU(), c.MaxConcurrentFiles))
}
