// Package cache provides caching in front of remote collaborators.
package cache

import (
	"context"
	"sync"

	"listbind/internal/core/id"
	"listbind/internal/infrastructure/remote"
	"listbind/pkg/logger"
)

// TermCache is a remote.TermStore that memoises fetched and created terms.
// Terms are immutable once created, entries live until Invalidate.
type TermCache struct {
	store remote.TermStore

	mu    sync.RWMutex
	terms map[termKey]remote.TermInfo
	hits  int
	miss  int

	// Listeners for cache invalidation
	listeners   []InvalidationListener
	listenersMu sync.RWMutex
}

type termKey struct {
	termSet string
	term    string
}

// InvalidationListener is called when term sets are invalidated. An empty
// termSetID means everything was dropped.
type InvalidationListener func(termSetID string)

var _ remote.TermStore = (*TermCache)(nil)

// NewTermCache wraps store.
func NewTermCache(store remote.TermStore) *TermCache {
	return &TermCache{
		store: store,
		terms: make(map[termKey]remote.TermInfo),
	}
}

// FetchTerm implements remote.TermStore.
func (c *TermCache) FetchTerm(ctx context.Context, termSetID, termGUID string) (remote.TermInfo, error) {
	key := termKey{termSet: termSetID, term: id.Normalize(termGUID)}

	c.mu.RLock()
	info, ok := c.terms[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return info, nil
	}

	info, err := c.store.FetchTerm(ctx, termSetID, key.term)
	if err != nil {
		return remote.TermInfo{}, err
	}

	c.mu.Lock()
	c.miss++
	c.terms[key] = info
	c.mu.Unlock()
	return info, nil
}

// CreateTerm implements remote.TermStore and primes the cache with the new term.
func (c *TermCache) CreateTerm(ctx context.Context, termSetID, label string) (string, error) {
	guid, err := c.store.CreateTerm(ctx, termSetID, label)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.terms[termKey{termSet: termSetID, term: id.Normalize(guid)}] = remote.TermInfo{ID: guid, Label: label, TermSetID: termSetID}
	c.mu.Unlock()
	logger.Debug(ctx, "term created", "term_set", termSetID, "label", label, "term", guid)
	return guid, nil
}

// Invalidate drops the terms of termSetID, or all terms when it is empty.
func (c *TermCache) Invalidate(termSetID string) {
	c.mu.Lock()
	if termSetID == "" {
		c.terms = make(map[termKey]remote.TermInfo)
	} else {
		for k := range c.terms {
			if k.termSet == termSetID {
				delete(c.terms, k)
			}
		}
	}
	c.mu.Unlock()

	c.listenersMu.RLock()
	listeners := append([]InvalidationListener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		l(termSetID)
	}
}

// OnInvalidation registers a callback for cache invalidation events.
func (c *TermCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

// CacheStats are the counters of a TermCache.
type CacheStats struct {
	Terms  int
	Hits   int
	Misses int
}

// GetStats returns current cache statistics.
func (c *TermCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Terms: len(c.terms), Hits: c.hits, Misses: c.miss}
}
