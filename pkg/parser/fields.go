package parser

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// ParseRole matches s case-insensitively against the closed role set.
func ParseRole(s string) (session.Role, error) {
	role := session.Role(strings.ToLower(s))
	for _, known := range session.Roles {
		if role == known {
			return role, nil
		}
	}
	return "", &Error{Kind: KindUnknownRole, Value: s}
}

// ParseTimestamp accepts RFC 3339 timestamps with optional fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &Error{Kind: KindInvalidTimestamp, Value: s, Err: err}
	}
	return ts, nil
}
