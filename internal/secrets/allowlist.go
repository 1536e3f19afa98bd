package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ProjectAllowlistFile is the allowlist file looked up in a session
// directory.
const ProjectAllowlistFile = ".gitleaks.toml"

// Allowlist holds patterns excluded from detection. Regexes match secret
// content; Paths match the source name handed to the redactor.
type Allowlist struct {
	Paths   []string
	Regexes []string
}

// Empty reports whether the allowlist has no patterns.
func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.Paths) == 0 && len(a.Regexes) == 0)
}

// LoadAllowlists reads and merges the given files. Missing files are
// skipped; a file that exists but is not valid TOML, or that holds a pattern
// that does not compile, is an error.
func LoadAllowlists(files ...string) (*Allowlist, error) {
	merged := &Allowlist{
		Paths:   []string{},
		Regexes: []string{},
	}

	for _, file := range files {
		if file == "" {
			continue
		}
		list, err := loadTOML(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		merged.Paths = append(merged.Paths, list.Paths...)
		merged.Regexes = append(merged.Regexes, list.Regexes...)
	}

	return merged, nil
}

func loadTOML(path string) (*Allowlist, error) {
	var file struct {
		Allowlist struct {
			Paths   []string `toml:"paths"`
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: path pattern %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: content pattern %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   file.Allowlist.Paths,
		Regexes: file.Allowlist.Regexes,
	}, nil
}
