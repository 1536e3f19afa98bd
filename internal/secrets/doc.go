// Package secrets detects and redacts credentials in conversation text.
//
// Detection uses the gitleaks default rule set. Allowlists are read from
// gitleaks-style TOML files:
//
//	[allowlist]
//	paths = ['''fixtures/.*''']
//	regexes = ['''EXAMPLE_KEY_.*''']
//
// A Redactor satisfies extract.Redactor and is safe for concurrent use. Each
// finding is replaced by a [REDACTED:<rule-id>] marker so downstream readers
// still see that a credential was present.
package secrets
