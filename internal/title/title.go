// Package title provides the canonical/normalized title pair used as the
// identity of a Wikipedia article throughout the pathfinding engine.
package title

import "strings"

// Title is a page title in both the form returned by the remote API
// (Canonical, preserved verbatim for display and further API calls) and
// the form used as a cache/visited-set key (Normalized).
type Title struct {
	Canonical  string
	Normalized string
}

// New builds a Title from a canonical string, computing its normalized form.
func New(canonical string) Title {
	return Title{
		Canonical:  canonical,
		Normalized: Normalize(canonical),
	}
}

// Normalize lowercases, replaces underscores with spaces, and trims
// surrounding whitespace. It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.TrimSpace(s)
	return strings.ToLower(s)
}

// Equal reports whether two canonical titles refer to the same normalized page.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
