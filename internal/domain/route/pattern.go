// Package route implements route pattern parsing and matching.
//
// Two pattern forms exist: exact absolute paths ("/billing") and prefix
// wildcards ("/admin/*"). Exact candidates always beat wildcard candidates;
// among wildcards the longest literal prefix wins, so "/admin/billing/*"
// shadows "/admin/*" for paths under /admin/billing/.
package route

import (
	"errors"
	"fmt"
	"strings"
)

// wildcardSuffix marks a prefix-wildcard pattern.
const wildcardSuffix = "/*"

// Pattern parsing errors.
var (
	// ErrEmptyPattern is returned for an empty pattern string.
	ErrEmptyPattern = errors.New("empty route pattern")
	// ErrNotAbsolute is returned when a pattern does not start with "/".
	ErrNotAbsolute = errors.New("route pattern must start with /")
	// ErrEmbeddedWildcard is returned when "*" appears anywhere except as
	// the trailing "/*" marker.
	ErrEmbeddedWildcard = errors.New(`wildcard only allowed as trailing "/*"`)
)

// Pattern is a parsed route pattern.
type Pattern struct {
	raw      string
	prefix   string // literal prefix including trailing "/", wildcard form only
	wildcard bool
}

// Parse validates and parses a pattern string.
func Parse(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, ErrEmptyPattern
	}
	if !strings.HasPrefix(raw, "/") {
		return Pattern{}, fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}

	if strings.HasSuffix(raw, wildcardSuffix) {
		prefix := strings.TrimSuffix(raw, "*")
		if strings.Contains(prefix, "*") {
			return Pattern{}, fmt.Errorf("%w: %q", ErrEmbeddedWildcard, raw)
		}
		return Pattern{raw: raw, prefix: prefix, wildcard: true}, nil
	}

	if strings.Contains(raw, "*") {
		return Pattern{}, fmt.Errorf("%w: %q", ErrEmbeddedWildcard, raw)
	}
	return Pattern{raw: raw}, nil
}

// MustParse parses a pattern and panics on error. For tests and static tables.
func MustParse(raw string) Pattern {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// IsWildcard reports whether the pattern is a prefix wildcard.
func (p Pattern) IsWildcard() bool { return p.wildcard }

// Prefix returns the literal prefix of a wildcard pattern, including the
// trailing slash. Empty for exact patterns.
func (p Pattern) Prefix() string { return p.prefix }

// Matches reports whether the concrete path matches this pattern.
// A wildcard pattern "/admin/*" matches any path with the literal prefix
// "/admin/"; it does not match "/admin" itself.
func (p Pattern) Matches(path string) bool {
	if p.wildcard {
		return strings.HasPrefix(path, p.prefix)
	}
	return path == p.raw
}

// Match selects the index of the winning pattern for path, or (-1, false)
// when no pattern matches. Exact matches take precedence over wildcards;
// among matching wildcards the longest literal prefix wins. Ties between
// equal-prefix wildcards cannot occur in a validated table, but if present
// the earliest entry wins for determinism.
func Match(path string, patterns []Pattern) (int, bool) {
	best := -1
	bestLen := -1
	for i, p := range patterns {
		if !p.Matches(path) {
			continue
		}
		if !p.wildcard {
			return i, true
		}
		if len(p.prefix) > bestLen {
			best = i
			bestLen = len(p.prefix)
		}
	}
	return best, best >= 0
}
