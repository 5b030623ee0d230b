// Package cache implements the normalized in-memory entity store the sync
// core mirrors server state into. Mutations go through the fetch
// coordinator and the subscription dispatcher only; the UI reads through
// selectors.
package cache

import "sync"

// Cache is a generic normalized entity cache: one value per key, replace
// semantics on upsert, stable insertion order for reads. List ordering
// that depends on entity fields (chat recency) is applied at read time by
// the owning Store, not at write time.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	key     func(V) K
	items   map[K]V
	order   []K
	version uint64
}

// New creates a cache whose entries are keyed by the given function.
func New[K comparable, V any](key func(V) K) *Cache[K, V] {
	return &Cache[K, V]{
		key:   key,
		items: make(map[K]V),
	}
}

// UpsertOne inserts or fully replaces the entry for the entity's key.
func (c *Cache[K, V]) UpsertOne(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(v)
	c.version++
}

// UpsertMany inserts or replaces a batch of entities in order.
func (c *Cache[K, V]) UpsertMany(vs []V) {
	if len(vs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range vs {
		c.upsertLocked(v)
	}
	c.version++
}

func (c *Cache[K, V]) upsertLocked(v V) {
	k := c.key(v)
	if _, ok := c.items[k]; !ok {
		c.order = append(c.order, k)
	}
	c.items[k] = v
}

// RemoveOne deletes the entry for k. Removing a missing key is a no-op.
func (c *Cache[K, V]) RemoveOne(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[k]; !ok {
		return
	}
	delete(c.items, k)
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.version++
}

// RemoveWhere deletes every entry matching pred and returns how many were
// removed. Used for cascades keyed on entity fields rather than keys.
func (c *Cache[K, V]) RemoveWhere(pred func(V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	kept := c.order[:0]
	for _, k := range c.order {
		if pred(c.items[k]) {
			delete(c.items, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	if removed > 0 {
		c.version++
	}
	return removed
}

// GetByID returns the entry for k.
func (c *Cache[K, V]) GetByID(k K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[k]
	return v, ok
}

// Has reports whether k is cached.
func (c *Cache[K, V]) Has(k K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[k]
	return ok
}

// All returns a snapshot of all entries in insertion order.
func (c *Cache[K, V]) All() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]V, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Version is a counter bumped on every mutation. Selectors memoize on it
// to recompute only when a dependent cache actually changed.
func (c *Cache[K, V]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
