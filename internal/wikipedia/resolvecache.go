package wikipedia

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"gitlab.com/tozd/go/errors"
)

const defaultResolveCacheSize = 2048

// ResolveCache memoizes Client.Resolve results for a process's lifetime,
// keyed on the raw query string, so repeated searches for the same start or
// end term do not re-hit the open-search endpoint.
type ResolveCache struct {
	client *Client
	lru    *lru.Cache[string, string]
}

// NewResolveCache wraps client with an in-process LRU of the given size.
func NewResolveCache(client *Client, size int) (*ResolveCache, error) {
	if size <= 0 {
		size = defaultResolveCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &ResolveCache{client: client, lru: cache}, nil
}

// Resolve returns the memoized canonical title for query, calling through
// to the client on a miss.
func (c *ResolveCache) Resolve(ctx context.Context, query string) (string, errors.E) {
	if canonical, ok := c.lru.Get(query); ok {
		return canonical, nil
	}
	canonical, errE := c.client.Resolve(ctx, query)
	if errE != nil {
		return "", errE
	}
	c.lru.Add(query, canonical)
	return canonical, nil
}
