package wikipedia

import (
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrNotFound is returned by OutboundLinks when the remote API reports
	// the page as missing.
	ErrNotFound = errors.Base("page not found")
	// ErrNotResolved is returned by Resolve when the open-search endpoint
	// returns no candidate for the query.
	ErrNotResolved = errors.Base("could not resolve title")
)

// withDetails wraps base with a stack trace and attaches key/value pairs
// to it, mirroring the teacher's errors.Details(errE)["key"] = value idiom.
func withDetails(base error, kv ...interface{}) errors.E {
	errE := errors.WithStack(base)
	details := errors.Details(errE)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		details[key] = kv[i+1]
	}
	return errE
}
