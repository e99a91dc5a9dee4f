package segment

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/title"
)

const (
	defaultCacheSize   = 10000
	defaultWarmupCount = 1000
	defaultMaxHops     = 3
)

type cacheKey struct {
	start, end string
}

// Cache is a bounded in-process LRU fronting a durable Store. All public
// operations acquire a single reentrant-by-construction lock (a
// sync.Mutex guarding only in-memory state); it is never held across a
// Store or network call.
type Cache struct {
	store Store
	lru   *lru.Cache[cacheKey, Segment]
	mu    sync.Mutex
	hits  atomic.Uint64
	miss  atomic.Uint64

	logger zerolog.Logger
}

// NewCache builds an empty Cache of the given size fronting store. It does
// not read from the store; Warm loads the most-recently-used segments.
func NewCache(store Store, size int, logger zerolog.Logger) (*Cache, errors.E) {
	if size <= 0 {
		size = defaultCacheSize
	}
	backing, err := lru.New[cacheKey, Segment](size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c := &Cache{store: store, lru: backing, logger: logger}
	return c, nil
}

// Warm loads the top-N most-recently-used segments from the Store into the
// LRU, per §4.3's warming requirement (N=1000 by default).
func (c *Cache) Warm(ctx context.Context) errors.E {
	segs, errE := c.store.Recent(ctx, defaultWarmupCount)
	if errE != nil {
		return errE
	}
	c.mu.Lock()
	for _, seg := range segs {
		c.lru.Add(cacheKey{seg.StartNormalized, seg.EndNormalized}, seg)
	}
	n := len(segs)
	c.mu.Unlock()
	c.logger.Info().Int("segments", n).Msg("segment cache warmed from store")
	return nil
}

// Get returns the path for (start, end), normalizing both. On a local miss
// it falls through to the Store; on a store hit it populates the LRU
// without re-writing the Store. Titles are normalized by the caller or here
// defensively.
func (c *Cache) Get(ctx context.Context, start, end string) ([]string, bool, errors.E) {
	seg, ok, errE := c.GetSegment(ctx, start, end)
	if errE != nil || !ok {
		return nil, ok, errE
	}
	return seg.Path, true, nil
}

// GetSegment is Get's full-fidelity counterpart, returning the stored
// Segment (including CreatedAt, used by the orchestrator to stamp cache
// provenance) rather than just its path.
func (c *Cache) GetSegment(ctx context.Context, start, end string) (Segment, bool, errors.E) {
	s, e := title.Normalize(start), title.Normalize(end)
	key := cacheKey{s, e}

	c.mu.Lock()
	seg, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return seg.Clone(), true, nil
	}
	c.miss.Add(1)

	stored, found, errE := c.store.Get(ctx, s, e)
	if errE != nil {
		return Segment{}, false, errE
	}
	if !found {
		return Segment{}, false, nil
	}

	c.mu.Lock()
	c.lru.Add(key, stored)
	c.mu.Unlock()

	return stored.Clone(), true, nil
}

// Put stores path under (start,end) in both tiers.
func (c *Cache) Put(ctx context.Context, path []string) errors.E {
	seg, errE := New(path)
	if errE != nil {
		return errE
	}
	return c.put(ctx, seg)
}

func (c *Cache) put(ctx context.Context, seg Segment) errors.E {
	c.mu.Lock()
	c.lru.Add(cacheKey{seg.StartNormalized, seg.EndNormalized}, seg)
	c.mu.Unlock()

	if errE := c.store.Put(ctx, seg); errE != nil {
		// Cache storage is best-effort: log and swallow per §7.
		c.logger.Error().Err(errE).Str("start", seg.StartNormalized).Str("end", seg.EndNormalized).
			Msg("segment store write failed, keeping in-memory entry only")
	}
	return nil
}

// BulkPut stores many segments at once, updating both tiers.
func (c *Cache) BulkPut(ctx context.Context, paths [][]string) errors.E {
	segs := make([]Segment, 0, len(paths))
	for _, p := range paths {
		seg, errE := New(p)
		if errE != nil {
			continue
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return nil
	}

	c.mu.Lock()
	for _, seg := range segs {
		c.lru.Add(cacheKey{seg.StartNormalized, seg.EndNormalized}, seg)
	}
	c.mu.Unlock()

	if errE := c.store.BulkPut(ctx, segs); errE != nil {
		c.logger.Error().Err(errE).Int("count", len(segs)).Msg("segment store bulk write failed, keeping in-memory entries only")
	}
	return nil
}

// ConnectedNodes returns the normalized titles reachable from page in dir
// ("out" or "in"), snapshotting in-memory keys before releasing the lock
// and querying the Store, so iteration never holds the lock across I/O.
func (c *Cache) ConnectedNodes(ctx context.Context, pageNormalized string, dir string, limit int) ([]string, errors.E) {
	c.mu.Lock()
	var fromMemory []string
	keys := c.lru.Keys()
	for _, k := range keys {
		if dir == "out" && k.start == pageNormalized {
			fromMemory = append(fromMemory, k.end)
		} else if dir == "in" && k.end == pageNormalized {
			fromMemory = append(fromMemory, k.start)
		}
	}
	c.mu.Unlock()

	var fromStore []string
	var errE errors.E
	if dir == "out" {
		fromStore, errE = c.store.NeighborsOut(ctx, pageNormalized, limit)
	} else {
		fromStore, errE = c.store.NeighborsIn(ctx, pageNormalized, limit)
	}
	if errE != nil {
		return nil, errE
	}

	return dedupe(append(fromMemory, fromStore...)), nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// composeState is the BFS-over-segments worklist item for Compose.
type composeState struct {
	current    string
	pathSoFar  []string
	hops       int
	provenance []Provenance
}

// Compose attempts to stitch a path from start to end using only cached
// segments, per §4.3. It is a BFS over cached segments bounded by maxHops
// (default 3). Composed paths may contain edges that existed when cached
// but no longer do; the caller must validate before trusting the result.
func (c *Cache) Compose(ctx context.Context, start, end string, maxHops int) ([]string, []Provenance, errors.E) {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	s, e := title.Normalize(start), title.Normalize(end)
	if s == e {
		return []string{start}, nil, nil
	}

	queue := []composeState{{current: s, pathSoFar: []string{start}, hops: 0}}
	visited := map[string]bool{s: true}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		neighbors, errE := c.ConnectedNodes(ctx, state.current, "out", 50)
		if errE != nil {
			return nil, nil, errE
		}

		for _, nxt := range neighbors {
			if visited[nxt] && nxt != e {
				continue
			}
			seg, ok, errE := c.GetSegment(ctx, state.current, nxt)
			if errE != nil {
				return nil, nil, errE
			}
			if !ok || len(seg.Path) < 2 {
				continue
			}

			newPath := append(append([]string(nil), state.pathSoFar...), seg.Path[1:]...)
			newProv := append(append([]Provenance(nil), state.provenance...), Provenance{
				From:      state.current,
				To:        nxt,
				Source:    SourceCache,
				Timestamp: seg.CreatedAt,
			})

			if nxt == e {
				return newPath, newProv, nil
			}

			if state.hops+1 < maxHops {
				visited[nxt] = true
				queue = append(queue, composeState{
					current:    nxt,
					pathSoFar:  newPath,
					hops:       state.hops + 1,
					provenance: newProv,
				})
			}
		}
	}

	return nil, nil, nil
}

// Stats returns cumulative hit/miss counts since construction.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.miss.Load()
}
