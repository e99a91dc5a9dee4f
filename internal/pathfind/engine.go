// Package pathfind implements the bidirectional BFS search over the live
// Wikipedia link graph (§4.5) and its k-diverse variant (§4.6).
package pathfind

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/pathvalidate"
	"gitlab.com/rangulvers/wikigraph/internal/progress"
	"gitlab.com/rangulvers/wikigraph/internal/title"
)

// ErrNoPath is returned when both frontiers are exhausted, or the total
// depth cap is exceeded, without finding a meeting point.
var ErrNoPath = errors.Base("no path found")

const (
	defaultMaxTotalDepth       = 6
	defaultProgressEveryNodes  = 20
	defaultProgressEveryPeriod = 500 * time.Millisecond
	defaultPolitenessEveryN    = 10
	defaultPolitenessSleep     = 50 * time.Millisecond
)

// Fetcher is the subset of wikipedia.Client the engine needs.
type Fetcher interface {
	OutboundLinks(ctx context.Context, pageTitle string) ([]string, errors.E)
	InboundLinks(ctx context.Context, pageTitle string, limit int) ([]string, errors.E)
}

// Config tunes the engine's depth cap, progress cadence, and politeness
// pacing; the zero value resolves every field to the spec defaults.
type Config struct {
	MaxTotalDepth        int
	ProgressEveryNodes   int
	ProgressEveryPeriod  time.Duration
	PolitenessEveryNodes int
	PolitenessSleep      time.Duration
	InboundLinksLimit    int
}

func (c Config) withDefaults() Config {
	if c.MaxTotalDepth <= 0 {
		c.MaxTotalDepth = defaultMaxTotalDepth
	}
	if c.ProgressEveryNodes <= 0 {
		c.ProgressEveryNodes = defaultProgressEveryNodes
	}
	if c.ProgressEveryPeriod <= 0 {
		c.ProgressEveryPeriod = defaultProgressEveryPeriod
	}
	if c.PolitenessEveryNodes <= 0 {
		c.PolitenessEveryNodes = defaultPolitenessEveryN
	}
	if c.PolitenessSleep <= 0 {
		c.PolitenessSleep = defaultPolitenessSleep
	}
	if c.InboundLinksLimit <= 0 {
		c.InboundLinksLimit = 500
	}
	return c
}

// Engine runs one bidirectional BFS search at a time; it holds no
// search-scoped state between calls, so a single Engine is reused across
// searches.
type Engine struct {
	client Fetcher
	config Config
	logger zerolog.Logger
}

// NewEngine builds an Engine backed by client.
func NewEngine(client Fetcher, config Config, logger zerolog.Logger) *Engine {
	return &Engine{client: client, config: config.withDefaults(), logger: logger}
}

// parentEntry is one node of a per-direction parent tree. HasParent is
// false only for the search's root (start for Pf, end for Pb).
type parentEntry struct {
	HasParent        bool
	ParentNormalized string
	Canonical        string
}

// frontierNode is the tuple BFS enqueues: the normalized identity, its
// canonical display form, and the depth at which it was reached.
type frontierNode struct {
	Normalized string
	Canonical  string
	Depth      int
}

// searchState carries both directions' queues and parent maps for one
// Search call.
type searchState struct {
	forwardQueue  []frontierNode
	backwardQueue []frontierNode
	forwardParent map[string]parentEntry
	backwardParent map[string]parentEntry
	forwardDepth  int
	backwardDepth int
}

// Search runs §4.5's bidirectional BFS from startCanonical to endCanonical,
// pushing progress/path events to stream (which may be nil to disable
// streaming, e.g. in tests). It returns the found path of canonical titles,
// or ErrNoPath once both frontiers are exhausted or the depth cap is
// exceeded.
func (e *Engine) Search(ctx context.Context, startCanonical, endCanonical string, stream *progress.Stream) ([]string, errors.E) {
	startNorm := title.Normalize(startCanonical)
	endNorm := title.Normalize(endCanonical)
	if startNorm == endNorm {
		return []string{startCanonical}, nil
	}

	state := &searchState{
		forwardQueue:   []frontierNode{{startNorm, startCanonical, 0}},
		backwardQueue:  []frontierNode{{endNorm, endCanonical, 0}},
		forwardParent:  map[string]parentEntry{startNorm: {Canonical: startCanonical}},
		backwardParent: map[string]parentEntry{endNorm: {Canonical: endCanonical}},
	}

	memo := pathvalidate.NewMemo()
	pagesChecked := 0
	sinceProgress := 0
	searchStarted := time.Now()
	lastProgress := searchStarted

	for (len(state.forwardQueue) > 0 || len(state.backwardQueue) > 0) &&
		state.forwardDepth+state.backwardDepth <= e.config.MaxTotalDepth {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}

		var (
			path  []string
			found bool
			errE  errors.E
		)

		switch {
		case len(state.forwardQueue) > 0 && (state.forwardDepth <= state.backwardDepth || len(state.backwardQueue) == 0):
			path, found, errE = e.expandForward(ctx, state, memo)
		case len(state.backwardQueue) > 0:
			path, found, errE = e.expandBackward(ctx, state, memo)
		default:
			path, found = nil, false
		}
		if errE != nil {
			return nil, errE
		}
		if found {
			if stream != nil {
				stream.Push(progress.Complete(path, "bfs", nil, 0))
			}
			return path, nil
		}

		pagesChecked++
		sinceProgress++

		if stream != nil && (sinceProgress >= e.config.ProgressEveryNodes || time.Since(lastProgress) >= e.config.ProgressEveryPeriod) {
			elapsed := time.Since(searchStarted).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(pagesChecked) / elapsed
			}
			stream.Push(progress.Progress(
				state.forwardDepth, state.backwardDepth, pagesChecked,
				len(state.forwardQueue), len(state.backwardQueue), rate,
			))
			sinceProgress = 0
			lastProgress = time.Now()
		}

		if pagesChecked%e.config.PolitenessEveryNodes == 0 {
			if errE := sleepOrCancel(ctx, e.config.PolitenessSleep); errE != nil {
				return nil, errE
			}
		}
	}

	return nil, errors.WithStack(ErrNoPath)
}

func sleepOrCancel(ctx context.Context, d time.Duration) errors.E {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// expandForward pops and expands one forward-frontier node. found is true
// iff a meeting point was discovered; no validation is needed in this
// direction, since both halves were observed live within this search.
func (e *Engine) expandForward(ctx context.Context, state *searchState, memo *pathvalidate.Memo) ([]string, bool, errors.E) {
	u := state.forwardQueue[0]
	state.forwardQueue = state.forwardQueue[1:]
	if u.Depth > state.forwardDepth {
		state.forwardDepth = u.Depth
	}

	links, errE := e.client.OutboundLinks(ctx, u.Canonical)
	if errE != nil {
		e.logger.Debug().Err(errE).Str("page", u.Canonical).Msg("outbound link fetch failed, treating as dead end")
		return nil, false, nil
	}

	targetNorms := make([]string, 0, len(links))
	for _, v := range links {
		targetNorms = append(targetNorms, title.Normalize(v))
	}
	memo.SeedSourceLinks(u.Normalized, targetNorms)

	for i, v := range links {
		vNorm := targetNorms[i]
		if _, ok := state.backwardParent[vNorm]; ok {
			merged := append(reconstructForward(state.forwardParent, u.Normalized), v)
			merged = append(merged, reconstructBackwardTail(state.backwardParent, vNorm)...)
			return merged, true, nil
		}
		if _, ok := state.forwardParent[vNorm]; ok {
			continue
		}
		state.forwardParent[vNorm] = parentEntry{HasParent: true, ParentNormalized: u.Normalized, Canonical: v}
		state.forwardQueue = append(state.forwardQueue, frontierNode{vNorm, v, u.Depth + 1})
	}

	return nil, false, nil
}

// expandBackward pops and expands one backward-frontier node. Because
// inbound_links may surface titles whose forward edge no longer exists
// (redirect/disambiguation artifacts), a meeting point found here must be
// validated end-to-end before the search can return it.
func (e *Engine) expandBackward(ctx context.Context, state *searchState, memo *pathvalidate.Memo) ([]string, bool, errors.E) {
	u := state.backwardQueue[0]
	state.backwardQueue = state.backwardQueue[1:]
	if u.Depth > state.backwardDepth {
		state.backwardDepth = u.Depth
	}

	links, errE := e.client.InboundLinks(ctx, u.Canonical, e.config.InboundLinksLimit)
	if errE != nil {
		e.logger.Debug().Err(errE).Str("page", u.Canonical).Msg("inbound link fetch failed, treating as dead end")
		return nil, false, nil
	}

	for _, v := range links {
		vNorm := title.Normalize(v)
		if _, ok := state.forwardParent[vNorm]; ok {
			merged := append(reconstructForward(state.forwardParent, vNorm), u.Canonical)
			merged = append(merged, reconstructBackwardTail(state.backwardParent, u.Normalized)...)

			memo.Clear()
			valid, errE := pathvalidate.Validate(ctx, e.client, memo, merged)
			if errE != nil {
				return nil, false, errE
			}
			if !valid {
				e.logger.Debug().Strs("path", merged).Msg("composed backward meeting point failed validation, continuing search")
				continue
			}
			return merged, true, nil
		}
		if _, ok := state.backwardParent[vNorm]; ok {
			continue
		}
		state.backwardParent[vNorm] = parentEntry{HasParent: true, ParentNormalized: u.Normalized, Canonical: v}
		state.backwardQueue = append(state.backwardQueue, frontierNode{vNorm, v, u.Depth + 1})
	}

	return nil, false, nil
}

// reconstructForward walks the forward parent tree from normalized to the
// root (start) and reverses it, yielding [start, ..., normalized].
func reconstructForward(parent map[string]parentEntry, normalized string) []string {
	var out []string
	cur := normalized
	for {
		entry := parent[cur]
		out = append(out, entry.Canonical)
		if !entry.HasParent {
			break
		}
		cur = entry.ParentNormalized
	}
	reverse(out)
	return out
}

// reconstructBackwardTail walks the backward parent tree starting at
// normalized's parent (skipping normalized itself, already contributed by
// the forward half) to the root (end), yielding [parent, ..., end] in
// left-to-right order with no reversal needed.
func reconstructBackwardTail(parent map[string]parentEntry, normalized string) []string {
	entry, ok := parent[normalized]
	if !ok || !entry.HasParent {
		return nil
	}
	var out []string
	cur := entry.ParentNormalized
	for {
		e := parent[cur]
		out = append(out, e.Canonical)
		if !e.HasParent {
			break
		}
		cur = e.ParentNormalized
	}
	return out
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
