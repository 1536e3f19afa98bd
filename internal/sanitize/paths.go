// Package sanitize validates paths and names received from untrusted callers.
package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Validation errors for path checks.
var (
	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrPathTraversal indicates a path contains a ".." segment.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrOutsideRoot indicates a path resolves outside the allowed root.
	ErrOutsideRoot = errors.New("path escapes allowed root")
)

// maxSourceLen bounds source names recorded in session metadata.
const maxSourceLen = 255

func hasTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ValidatePath returns the absolute form of path. Paths with a ".." segment
// are rejected outright. If allowedRoot is non-empty the path must resolve
// inside it.
func ValidatePath(path, allowedRoot string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}
	if hasTraversal(path) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if allowedRoot == "" {
		return absPath, nil
	}

	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return absPath, nil
}

// SourceName reduces an untrusted source label to a printable base name.
// Empty input, traversal attempts and bare roots yield fallback.
func SourceName(source, fallback string) string {
	source = strings.TrimSpace(source)
	if source == "" || hasTraversal(source) {
		return fallback
	}

	base := filepath.Base(filepath.Clean(source))
	base = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return fallback
	}

	if len(base) > maxSourceLen {
		base = strings.ToValidUTF8(base[:maxSourceLen], "")
	}
	return base
}
