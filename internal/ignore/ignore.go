// Package ignore provides gitignore-style exclusion for session discovery.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFile is the ignore file read from a discovery root.
const DefaultFile = ".sessionignore"

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are returned when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// ParseDir reads all ignore files from root and returns combined exclude
// patterns. If no ignore files are found, returns fallback patterns.
func (p *Parser) ParseDir(root string) ([]string, error) {
	var patterns []string
	foundAny := false

	for _, ignoreFile := range p.IgnoreFiles {
		filePatterns, err := p.parseFile(filepath.Join(root, ignoreFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		return p.FallbackPatterns, nil
	}
	return deduplicate(patterns), nil
}

// parseFile reads a single gitignore-style file and returns patterns.
func (p *Parser) parseFile(name string) ([]string, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseLine parses a single line from an ignore file.
// Returns empty string for comments, blank lines and negations.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")

	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}

	// Negation is not supported.
	if strings.HasPrefix(line, "!") {
		return ""
	}

	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to the "**" form Matcher understands.
func toGlobPattern(pattern string) string {
	// A leading slash anchors to the root, which is where discovery starts.
	pattern = strings.TrimPrefix(pattern, "/")

	if strings.HasSuffix(pattern, "/") {
		pattern = pattern + "**"
	}

	// Patterns without a slash match at any depth.
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		if !strings.HasPrefix(pattern, "*") {
			pattern = "**/" + pattern
		}
	}

	// Names without an extension are treated as directories.
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern = pattern + "/**"
	}

	return pattern
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// Matcher tests slash-separated relative paths against converted patterns.
// A leading "**/" matches at any depth and a trailing "/**" matches a
// directory and everything below it. Segments use filepath.Match syntax.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a matcher for the given patterns.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: patterns}
}

// Load reads DefaultFile from root. A missing file yields an empty matcher.
func Load(root string) (*Matcher, error) {
	patterns, err := NewParser([]string{DefaultFile}, nil).ParseDir(root)
	if err != nil {
		return nil, err
	}
	return NewMatcher(patterns), nil
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match reports whether relPath is excluded.
func (m *Matcher) Match(relPath string) bool {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" || relPath == "." {
		return false
	}
	segments := strings.Split(relPath, "/")

	for _, pattern := range m.patterns {
		if matchPattern(pattern, segments) {
			return true
		}
	}
	return false
}

func matchPattern(pattern string, segments []string) bool {
	anywhere := strings.HasPrefix(pattern, "**/")
	pattern = strings.TrimPrefix(pattern, "**/")
	dir := strings.HasSuffix(pattern, "/**")
	pattern = strings.TrimSuffix(pattern, "/**")

	// Unanchored patterns without a slash also match the base name, like
	// "*.log".
	if !anywhere && !dir && !strings.Contains(pattern, "/") {
		anywhere = true
	}

	last := 0
	if anywhere {
		last = len(segments) - 1
	}
	for i := 0; i <= last; i++ {
		if dir {
			// Any run of segments starting at i names a directory.
			for j := i + 1; j <= len(segments); j++ {
				if globMatch(pattern, segments[i:j]) {
					return true
				}
			}
			continue
		}
		if globMatch(pattern, segments[i:]) {
			return true
		}
	}
	return false
}

func globMatch(pattern string, segments []string) bool {
	matched, _ := path.Match(pattern, strings.Join(segments, "/"))
	return matched
}
