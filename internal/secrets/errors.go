package secrets

import "errors"

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")

	// ErrDetectorInit indicates the gitleaks rule set could not be loaded.
	ErrDetectorInit = errors.New("secret detector initialization failed")
)
