package segment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/segment"
)

// memStore is an in-memory segment.Store used to test Cache without Postgres.
type memStore struct {
	mu   sync.Mutex
	rows map[[2]string]segment.Segment
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[[2]string]segment.Segment)}
}

func (m *memStore) key(s, e string) [2]string { return [2]string{s, e} }

func (m *memStore) Get(_ context.Context, start, end string) (segment.Segment, bool, errors.E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seg, ok := m.rows[m.key(start, end)]
	return seg, ok, nil
}

func (m *memStore) Put(ctx context.Context, seg segment.Segment) errors.E {
	return m.BulkPut(ctx, []segment.Segment{seg})
}

func (m *memStore) BulkPut(_ context.Context, segs []segment.Segment) errors.E {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seg := range segs {
		m.rows[m.key(seg.StartNormalized, seg.EndNormalized)] = seg
	}
	return nil
}

func (m *memStore) NeighborsOut(_ context.Context, page string, limit int) ([]string, errors.E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.rows {
		if k[0] == page {
			out = append(out, k[1])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) NeighborsIn(_ context.Context, page string, limit int) ([]string, errors.E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.rows {
		if k[1] == page {
			out = append(out, k[0])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Prune(_ context.Context, _ time.Duration, _ int) errors.E { return nil }

func (m *memStore) Recent(_ context.Context, limit int) ([]segment.Segment, errors.E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []segment.Segment
	for _, seg := range m.rows {
		out = append(out, seg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func TestCacheGetFallsThroughToStore(t *testing.T) {
	store := newMemStore()
	seg, errE := segment.New([]string{"Cat", "Dog"})
	require.NoError(t, errE)
	require.NoError(t, store.Put(context.Background(), seg))

	cache, errE := segment.NewCache(store, 10, zerolog.Nop())
	require.NoError(t, errE)

	path, ok, errE := cache.Get(context.Background(), "Cat", "Dog")
	require.NoError(t, errE)
	assert.True(t, ok)
	assert.Equal(t, []string{"Cat", "Dog"}, path)

	hits, misses := cache.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(1), misses)

	// Second lookup should be an in-memory hit.
	_, ok, errE = cache.Get(context.Background(), "Cat", "Dog")
	require.NoError(t, errE)
	assert.True(t, ok)
	hits, _ = cache.Stats()
	assert.Equal(t, uint64(1), hits)
}

func TestCacheGetMissReturnsFalse(t *testing.T) {
	store := newMemStore()
	cache, errE := segment.NewCache(store, 10, zerolog.Nop())
	require.NoError(t, errE)

	_, ok, errE := cache.Get(context.Background(), "Cat", "Giraffe")
	require.NoError(t, errE)
	assert.False(t, ok)
}

func TestCachePutUpdatesBothTiers(t *testing.T) {
	store := newMemStore()
	cache, errE := segment.NewCache(store, 10, zerolog.Nop())
	require.NoError(t, errE)

	require.NoError(t, cache.Put(context.Background(), []string{"Cat", "Dog"}))

	_, ok, errE := store.Get(context.Background(), "cat", "dog")
	require.NoError(t, errE)
	assert.True(t, ok)
}

func TestComposeStitchesTwoHopPath(t *testing.T) {
	store := newMemStore()
	cache, errE := segment.NewCache(store, 10, zerolog.Nop())
	require.NoError(t, errE)

	require.NoError(t, cache.Put(context.Background(), []string{"Cat", "Mammal"}))
	require.NoError(t, cache.Put(context.Background(), []string{"Mammal", "Dog"}))

	path, _, errE := cache.Compose(context.Background(), "Cat", "Dog", 3)
	require.NoError(t, errE)
	assert.Equal(t, []string{"Cat", "Mammal", "Dog"}, path)
}

func TestComposeReturnsNilWhenUnreachable(t *testing.T) {
	store := newMemStore()
	cache, errE := segment.NewCache(store, 10, zerolog.Nop())
	require.NoError(t, errE)

	path, prov, errE := cache.Compose(context.Background(), "Cat", "Giraffe", 3)
	require.NoError(t, errE)
	assert.Nil(t, path)
	assert.Nil(t, prov)
}

func TestComposeSamePage(t *testing.T) {
	store := newMemStore()
	cache, errE := segment.NewCache(store, 10, zerolog.Nop())
	require.NoError(t, errE)

	path, _, errE := cache.Compose(context.Background(), "Cat", "Cat", 3)
	require.NoError(t, errE)
	assert.Equal(t, []string{"Cat"}, path)
}
