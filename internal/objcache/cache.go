// Package objcache implements cachegate's byte-bounded, TTL'd LRU cache of
// object bodies. A single mutex guards the map, the LRU list, and the
// running byte total; no I/O is ever performed while it is held.
package objcache

import (
	"container/list"
	"sync"
	"time"
)

// Key identifies a cached object by the store bucket it came from and its
// path within that bucket. Equality is byte-exact; there is no
// normalization of either field.
type Key struct {
	BucketID string
	Path     string
}

// Object is the immutable, shareable payload stored per key. Once
// constructed it is never mutated; every reader shares the same backing
// byte slice.
type Object struct {
	Bytes       []byte
	ContentType string
	Size        int64
}

type entry struct {
	key        Key
	object     Object
	insertedAt time.Time
	elem       *list.Element
}

// Cache is a fixed-capacity, TTL-expiring LRU keyed by Key.
type Cache struct {
	mu        sync.Mutex
	ttl       time.Duration
	maxBytes  int64
	bytesUsed int64
	items     map[Key]*entry
	order     *list.List // front = most recently used
}

// New constructs an empty cache bounded to maxBytes with the given TTL.
func New(maxBytes int64, ttl time.Duration) *Cache {
	return &Cache{
		ttl:      ttl,
		maxBytes: maxBytes,
		items:    make(map[Key]*entry),
		order:    list.New(),
	}
}

// Get returns the cached object for key if present and unexpired,
// promoting it to most-recently-used. An expired entry is evicted on read
// and reported as a miss.
func (c *Cache) Get(key Key, now time.Time) (Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return Object{}, false
	}
	if now.Sub(e.insertedAt) > c.ttl {
		c.removeLocked(e)
		return Object{}, false
	}
	c.order.MoveToFront(e.elem)
	return e.object, true
}

// Insert adds obj under key, evicting least-recently-used entries until the
// byte budget is satisfied. Objects larger than maxBytes are never stored;
// the caller still serves them to the client, just without caching.
func (c *Cache) Insert(key Key, obj Object, now time.Time) {
	if obj.Size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		c.removeLocked(existing)
	}

	for c.bytesUsed+obj.Size > c.maxBytes {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}

	e := &entry{key: key, object: obj, insertedAt: now}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
	c.bytesUsed += obj.Size
}

// removeLocked deletes e from both the map and the LRU list and decrements
// bytesUsed. Caller must hold c.mu.
func (c *Cache) removeLocked(e *entry) {
	delete(c.items, e.key)
	c.order.Remove(e.elem)
	c.bytesUsed -= e.object.Size
}

// SizeBytes reports the current total of cached object bytes.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesUsed
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
