package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/pkg/extract"
)

var _ extract.Redactor = (*Redactor)(nil)

// Finding is a detected secret.
type Finding struct {
	RuleID      string
	Description string
	Line        int
	StartCol    int
	EndCol      int
	Secret      string
}

// Redactor replaces detected secrets with markers.
type Redactor struct {
	cfg        gitleaksConfig.Config
	logger     *zap.Logger
	redactions atomic.Int64
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithLogger sets the logger. Secret values are never logged.
func WithLogger(l *zap.Logger) Option {
	return func(r *Redactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// New loads the gitleaks default rules and applies allowlist, which may be
// nil.
func New(allowlist *Allowlist, opts ...Option) (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorInit, err)
	}

	r := &Redactor{
		cfg:    d.Config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if !allowlist.Empty() {
		if err := r.applyAllowlist(allowlist); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Redactor) applyAllowlist(allowlist *Allowlist) error {
	entry := &gitleaksConfig.Allowlist{
		Description: "sessionparse allowlist",
		StopWords:   append([]string(nil), allowlist.Regexes...),
	}

	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Paths = append(entry.Paths, (*gitleaksRegexp.Regexp)(re))
	}

	r.cfg.Allowlists = append(r.cfg.Allowlists, entry)
	return nil
}

// Detect returns the secrets found in text.
func (r *Redactor) Detect(text string) []Finding {
	if text == "" {
		return nil
	}

	// A Detector accumulates findings across calls, so each scan gets its own.
	found := detect.NewDetector(r.cfg).DetectString(text)

	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			StartCol:    f.StartColumn,
			EndCol:      f.EndColumn,
			Secret:      secret,
		})
	}
	return findings
}

// Redact replaces every detected secret in text with [REDACTED:<rule-id>].
func (r *Redactor) Redact(text string) string {
	findings := r.Detect(text)
	if len(findings) == 0 {
		return text
	}

	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})

	seen := make(map[string]struct{}, len(findings))
	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		if _, ok := seen[f.Secret]; ok {
			continue
		}
		seen[f.Secret] = struct{}{}
		text = strings.ReplaceAll(text, f.Secret, Marker(f.RuleID))
		rules = append(rules, f.RuleID)
	}

	r.redactions.Add(int64(len(seen)))
	r.logger.Debug("redacted secrets", zap.Int("count", len(seen)), zap.Strings("rules", rules))
	return text
}

// Redactions returns the number of distinct secrets replaced so far.
func (r *Redactor) Redactions() int64 {
	return r.redactions.Load()
}

// Marker returns the replacement text for a finding of ruleID.
func Marker(ruleID string) string {
	return "[REDACTED:" + ruleID + "]"
}
