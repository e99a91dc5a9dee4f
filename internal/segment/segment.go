// Package segment implements the durable, LRU-fronted store of previously
// discovered sub-paths ("segments") that the orchestrator uses to
// short-circuit future searches.
package segment

import (
	"time"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/title"
)

// ErrInvalidSegment is the base error for segment invariant violations.
var ErrInvalidSegment = errors.Base("invalid segment")

// withDetails wraps base with a stack trace and attaches key/value pairs,
// mirroring the teacher's errors.Details(errE)["key"] = value idiom.
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

// Segment is a directed sub-path start -> ... -> end persisted for reuse.
// Path holds canonical titles; StartNormalized/EndNormalized are its
// endpoints' normalized forms, used as the store key.
type Segment struct {
	StartNormalized string
	EndNormalized   string
	Path            []string
	Hops            int
	UseCount        int64
	LastUsed        time.Time
	CreatedAt       time.Time
}

// New builds a Segment from a canonical-title path, deriving and validating
// its endpoints and hop count. path[0] must normalize to start and path[len-1]
// to end, hops == len(path)-1 >= 1, with no repeated normalized titles.
func New(path []string) (Segment, errors.E) {
	if len(path) < 2 {
		return Segment{}, withDetails(ErrInvalidSegment, "reason", "path must have at least two nodes")
	}

	seen := make(map[string]bool, len(path))
	for _, p := range path {
		n := title.Normalize(p)
		if seen[n] {
			return Segment{}, withDetails(ErrInvalidSegment, "reason", "duplicate normalized title", "title", p)
		}
		seen[n] = true
	}

	now := time.Now()
	return Segment{
		StartNormalized: title.Normalize(path[0]),
		EndNormalized:   title.Normalize(path[len(path)-1]),
		Path:            append([]string(nil), path...),
		Hops:            len(path) - 1,
		UseCount:        1,
		LastUsed:        now,
		CreatedAt:       now,
	}, nil
}

// Clone returns a defensive copy, so callers cannot mutate the cache's or
// store's internal Path slice.
func (s Segment) Clone() Segment {
	clone := s
	clone.Path = append([]string(nil), s.Path...)
	return clone
}

// SubSegments decomposes the segment's path into all contiguous sub-paths
// with hop counts between minHops and maxHops inclusive, the
// decomposition the orchestrator writes back to the cache on a BFS success.
func (s Segment) SubSegments(minHops, maxHops int) []Segment {
	var out []Segment
	n := len(s.Path)
	for i := 0; i < n; i++ {
		for hops := minHops; hops <= maxHops; hops++ {
			j := i + hops
			if j >= n {
				break
			}
			sub, errE := New(s.Path[i : j+1])
			if errE != nil {
				continue
			}
			out = append(out, sub)
		}
	}
	return out
}

// Provenance annotates a single edge of a result path with where it came
// from, per §4.7 of the specification.
type Provenance struct {
	From      string
	To        string
	Source    string // "cache" or "bfs"
	Timestamp time.Time
}

const (
	SourceCache = "cache"
	SourceBFS   = "bfs"
)
