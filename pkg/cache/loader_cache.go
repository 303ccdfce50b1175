// Package cache provides a bounded read-through cache whose concurrent misses for one key
// share a single load.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache is an LRU cache filled on miss by a caller-supplied load function.
// Concurrent misses for the same key run load once. Failed loads are not cached,
// so a missing key is looked up again on the next call.
type LoaderCache[K comparable, V any] struct {
	entries  *lru.Cache[string, V]
	inFlight singleflight.Group
	keyOf    func(K) string
}

// NewLoaderCache creates a cache holding at most maxEntries values. keyOf must map
// distinct keys to distinct strings.
func NewLoaderCache[K comparable, V any](maxEntries int, keyOf func(K) string) (*LoaderCache[K, V], error) {
	entries, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}

	return &LoaderCache[K, V]{
		entries: entries,
		keyOf:   keyOf,
	}, nil
}

// Get returns the cached value for key or loads it.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)
	return v, err
}

// GetWithStats is Get that also reports whether the value was already cached.
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	k := c.keyOf(key)
	if v, ok := c.entries.Get(k); ok {
		return v, true, nil
	}

	res, err, _ := c.inFlight.Do(k, func() (any, error) {
		v, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.entries.Add(k, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}

	return res.(V), false, nil
}

// Invalidate drops key.
func (c *LoaderCache[K, V]) Invalidate(key K) {
	c.entries.Remove(c.keyOf(key))
}

// InvalidateAll drops every entry.
func (c *LoaderCache[K, V]) InvalidateAll() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *LoaderCache[K, V]) Len() int {
	return c.entries.Len()
}
