// Package pathvalidate checks that a candidate path of titles still holds
// as a chain of live edges in the remote graph, re-fetching each source
// page's outbound links through the Wikipedia Client.
package pathvalidate

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/title"
)

// Fetcher is the subset of wikipedia.Client the validator needs, so tests
// can supply a stub without standing up an httptest server.
type Fetcher interface {
	OutboundLinks(ctx context.Context, pageTitle string) ([]string, errors.E)
}

// Memo is a per-search edge-validation cache: (source_normalized,
// target_normalized) -> holds. BFS expansion seeds positive entries as a
// side effect of fetching a page's outbound links; the validator seeds
// negative entries only after a validation fetch shows an edge absent.
// Safe for concurrent use: every method takes the memo's own mutex, which
// lets the validator's parallel per-source checks share one memo.
type Memo struct {
	mu    sync.Mutex
	edges map[edgeKey]bool
}

type edgeKey struct {
	source, target string
}

// NewMemo returns an empty memo, ready for one search.
func NewMemo() *Memo {
	return &Memo{edges: make(map[edgeKey]bool)}
}

// SeedSourceLinks marks every edge out of source as holding, the side
// effect of a BFS expansion fetching source's outbound links.
func (m *Memo) SeedSourceLinks(sourceNormalized string, targetsNormalized []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range targetsNormalized {
		m.edges[edgeKey{sourceNormalized, t}] = true
	}
}

func (m *Memo) get(sourceNormalized, targetNormalized string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.edges[edgeKey{sourceNormalized, targetNormalized}]
	return v, ok
}

func (m *Memo) set(sourceNormalized, targetNormalized string, holds bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edgeKey{sourceNormalized, targetNormalized}] = holds
}

// Clear discards all entries. Called before validating a path whose
// backward half may rely on inbound_links, so BFS-seeded positives cannot
// mask a stale remote edge (§4.4).
func (m *Memo) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = make(map[edgeKey]bool)
}

// Validate reports whether every consecutive edge of path holds, checking
// edges in parallel and serving repeats of the same source from memo.
// Single-node or empty paths are trivially valid. A transport failure
// during validation counts as invalid, per §4.4's "fail safe" rule.
func Validate(ctx context.Context, client Fetcher, memo *Memo, path []string) (bool, errors.E) {
	if len(path) < 2 {
		return true, nil
	}

	type edge struct {
		source, target string
	}
	edges := make([]edge, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		edges[i] = edge{path[i], path[i+1]}
	}

	g, ctx := errgroup.WithContext(ctx)
	results := make([]bool, len(edges))

	// Group edges by normalized source so each distinct source is fetched
	// at most once even when the memo is cold for all of them.
	bySource := make(map[string][]int)
	for i, e := range edges {
		bySource[title.Normalize(e.source)] = append(bySource[title.Normalize(e.source)], i)
	}

	for sourceNormalized, indices := range bySource {
		sourceNormalized, indices := sourceNormalized, indices
		g.Go(func() error {
			var links []string
			needFetch := false
			for _, idx := range indices {
				targetNormalized := title.Normalize(edges[idx].target)
				if holds, ok := memo.get(sourceNormalized, targetNormalized); ok {
					results[idx] = holds
					continue
				}
				needFetch = true
			}
			if !needFetch {
				return nil
			}

			fetched, err := client.OutboundLinks(ctx, edges[indices[0]].source)
			if err != nil {
				for _, idx := range indices {
					results[idx] = false
				}
				return nil //nolint:nilerr // transport failure is "invalid", not a fatal error, per §4.4.
			}
			links = fetched

			linkSet := make(map[string]bool, len(links))
			for _, l := range links {
				linkSet[title.Normalize(l)] = true
			}
			memo.SeedSourceLinks(sourceNormalized, keys(linkSet))

			for _, idx := range indices {
				targetNormalized := title.Normalize(edges[idx].target)
				holds := linkSet[targetNormalized]
				results[idx] = holds
				memo.set(sourceNormalized, targetNormalized, holds)
			}
			return nil
		})
	}

	_ = g.Wait()

	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
