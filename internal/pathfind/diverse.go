package pathfind

import (
	"context"
	"sort"
	"time"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/pathvalidate"
	"gitlab.com/rangulvers/wikigraph/internal/progress"
	"gitlab.com/rangulvers/wikigraph/internal/title"
)

const defaultMinDiversity = 0.3

// SearchKDiverse wraps Search (§4.5) to keep expanding past the first
// meeting point, collecting up to k paths whose pairwise Jaccard distance
// over normalized-title sets is at least minDiversity (§4.6). A
// minDiversity <= 0 resolves to the spec default of 0.3. Results are
// returned sorted by length ascending.
func (e *Engine) SearchKDiverse(ctx context.Context, startCanonical, endCanonical string, k int, minDiversity float64, stream *progress.Stream) ([][]string, errors.E) {
	if minDiversity <= 0 {
		minDiversity = defaultMinDiversity
	}
	if k <= 0 {
		k = 1
	}

	startNorm := title.Normalize(startCanonical)
	endNorm := title.Normalize(endCanonical)
	if startNorm == endNorm {
		return [][]string{{startCanonical}}, nil
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

	var admitted [][]string
	firstPathLen := -1

	admit := func(candidate []string) {
		if !jaccardAdmissible(admitted, candidate, minDiversity) {
			return
		}
		admitted = append(admitted, candidate)
		if firstPathLen < 0 {
			firstPathLen = len(candidate)
		}
		if stream != nil {
			stream.Push(progress.PathFound(candidate, nil))
		}
	}

	for len(state.forwardQueue) > 0 || len(state.backwardQueue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if len(admitted) >= k {
			break
		}
		if state.forwardDepth+state.backwardDepth > e.config.MaxTotalDepth {
			break
		}
		if firstPathLen >= 0 && state.forwardDepth+state.backwardDepth > firstPathLen-1+2 {
			break
		}

		var (
			candidates [][]string
			errE       errors.E
		)
		switch {
		case len(state.forwardQueue) > 0 && (state.forwardDepth <= state.backwardDepth || len(state.backwardQueue) == 0):
			candidates, errE = e.expandForwardCollect(ctx, state, memo)
		case len(state.backwardQueue) > 0:
			candidates, errE = e.expandBackwardCollect(ctx, state, memo)
		default:
		}
		if errE != nil {
			return nil, errE
		}
		for _, c := range candidates {
			admit(c)
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

	if len(admitted) == 0 {
		return nil, errors.WithStack(ErrNoPath)
	}

	sort.Slice(admitted, func(i, j int) bool { return len(admitted[i]) < len(admitted[j]) })
	return admitted, nil
}

// expandForwardCollect is expandForward's k-diverse variant: a meeting
// point is recorded as a candidate but does not stop expansion.
func (e *Engine) expandForwardCollect(ctx context.Context, state *searchState, memo *pathvalidate.Memo) ([][]string, errors.E) {
	u := state.forwardQueue[0]
	state.forwardQueue = state.forwardQueue[1:]
	if u.Depth > state.forwardDepth {
		state.forwardDepth = u.Depth
	}

	links, errE := e.client.OutboundLinks(ctx, u.Canonical)
	if errE != nil {
		e.logger.Debug().Err(errE).Str("page", u.Canonical).Msg("outbound link fetch failed, treating as dead end")
		return nil, nil
	}

	targetNorms := make([]string, 0, len(links))
	for _, v := range links {
		targetNorms = append(targetNorms, title.Normalize(v))
	}
	memo.SeedSourceLinks(u.Normalized, targetNorms)

	var candidates [][]string
	for i, v := range links {
		vNorm := targetNorms[i]
		if _, ok := state.backwardParent[vNorm]; ok {
			merged := append(reconstructForward(state.forwardParent, u.Normalized), v)
			merged = append(merged, reconstructBackwardTail(state.backwardParent, vNorm)...)
			candidates = append(candidates, merged)
			continue
		}
		if _, ok := state.forwardParent[vNorm]; ok {
			continue
		}
		state.forwardParent[vNorm] = parentEntry{HasParent: true, ParentNormalized: u.Normalized, Canonical: v}
		state.forwardQueue = append(state.forwardQueue, frontierNode{vNorm, v, u.Depth + 1})
	}

	return candidates, nil
}

// expandBackwardCollect is expandBackward's k-diverse variant.
func (e *Engine) expandBackwardCollect(ctx context.Context, state *searchState, memo *pathvalidate.Memo) ([][]string, errors.E) {
	u := state.backwardQueue[0]
	state.backwardQueue = state.backwardQueue[1:]
	if u.Depth > state.backwardDepth {
		state.backwardDepth = u.Depth
	}

	links, errE := e.client.InboundLinks(ctx, u.Canonical, e.config.InboundLinksLimit)
	if errE != nil {
		e.logger.Debug().Err(errE).Str("page", u.Canonical).Msg("inbound link fetch failed, treating as dead end")
		return nil, nil
	}

	var candidates [][]string
	for _, v := range links {
		vNorm := title.Normalize(v)
		if _, ok := state.forwardParent[vNorm]; ok {
			merged := append(reconstructForward(state.forwardParent, vNorm), u.Canonical)
			merged = append(merged, reconstructBackwardTail(state.backwardParent, u.Normalized)...)

			memo.Clear()
			valid, errE := pathvalidate.Validate(ctx, e.client, memo, merged)
			if errE != nil {
				return nil, errE
			}
			if !valid {
				e.logger.Debug().Strs("path", merged).Msg("composed backward meeting point failed validation, continuing search")
				continue
			}
			candidates = append(candidates, merged)
			continue
		}
		if _, ok := state.backwardParent[vNorm]; ok {
			continue
		}
		state.backwardParent[vNorm] = parentEntry{HasParent: true, ParentNormalized: u.Normalized, Canonical: v}
		state.backwardQueue = append(state.backwardQueue, frontierNode{vNorm, v, u.Depth + 1})
	}

	return candidates, nil
}

// jaccardAdmissible reports whether candidate is at least minDiversity
// Jaccard-distant from every path already admitted.
func jaccardAdmissible(admitted [][]string, candidate []string, minDiversity float64) bool {
	candidateSet := normalizedSet(candidate)
	for _, existing := range admitted {
		if jaccardDistance(candidateSet, normalizedSet(existing)) < minDiversity {
			return false
		}
	}
	return true
}

func normalizedSet(path []string) map[string]struct{} {
	set := make(map[string]struct{}, len(path))
	for _, p := range path {
		set[title.Normalize(p)] = struct{}{}
	}
	return set
}

// jaccardDistance computes 1 - |A∩B|/|A∪B| over two normalized-title sets.
func jaccardDistance(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}
