package parser

// RecoveryConfig controls how line-level failures are tolerated.
type RecoveryConfig struct {
	SkipMalformedLines   bool `koanf:"skip_malformed_lines" json:"skip_malformed_lines"`
	MaxConsecutiveErrors int  `koanf:"max_consecutive_errors" json:"max_consecutive_errors"`

	// ContinueOnCriticalErrors lets Batch.ParseFiles return the sessions that
	// did parse when some files failed.
	ContinueOnCriticalErrors bool `koanf:"continue_on_critical_errors" json:"continue_on_critical_errors"`

	// DetailedErrorReporting logs every skipped line and records it in
	// Session.Metadata.LineErrors.
	DetailedErrorReporting bool `koanf:"detailed_error_reporting" json:"detailed_error_reporting"`
}

// DefaultRecoveryConfig skips malformed lines and aborts after more than ten
// consecutive failures.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		SkipMalformedLines:     true,
		MaxConsecutiveErrors:   10,
		DetailedErrorReporting: true,
	}
}

// Decision is the outcome of a line failure.
type Decision int

const (
	// DecisionSkip drops the line and continues.
	DecisionSkip Decision = iota
	// DecisionAbort fails the whole file.
	DecisionAbort
)

func (d Decision) String() string {
	if d == DecisionSkip {
		return "skip"
	}
	return "abort"
}

// RecoveryPolicy decides whether a failed line is skipped or aborts the file.
// It counts consecutive failures and must not be shared between file parses.
type RecoveryPolicy struct {
	cfg         RecoveryConfig
	consecutive int
}

// NewRecoveryPolicy returns a policy with a zeroed counter.
func NewRecoveryPolicy(cfg RecoveryConfig) *RecoveryPolicy {
	return &RecoveryPolicy{cfg: cfg}
}

// Success resets the consecutive failure counter.
func (p *RecoveryPolicy) Success() {
	p.consecutive = 0
}

// Failure records a failed line. On DecisionAbort the returned error is the
// one the file parse must fail with: a KindTooManyErrors error once the
// counter exceeds MaxConsecutiveErrors, otherwise err itself.
func (p *RecoveryPolicy) Failure(err error) (Decision, error) {
	p.consecutive++

	if p.consecutive > p.cfg.MaxConsecutiveErrors {
		return DecisionAbort, &Error{Kind: KindTooManyErrors, Count: p.consecutive, Err: err}
	}
	if p.cfg.SkipMalformedLines {
		return DecisionSkip, nil
	}
	return DecisionAbort, err
}

// Consecutive returns the current run of failures.
func (p *RecoveryPolicy) Consecutive() int {
	return p.consecutive
}
