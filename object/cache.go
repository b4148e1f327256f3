package object

import (
	"container/list"
	"sync"

	"github.com/basincore/gitkernel/hash"
)

// DefaultCacheSize is the default object cache capacity, matching the
// teacher's own cache.ObjectLRUDefaultSize.
const DefaultCacheSize = 256

// Cache is an in-memory, OID-keyed LRU cache of decoded objects. Get
// promotes the entry to most-recently-used; Peek inspects it without
// disturbing recency, which the object database's "is this already
// resident, without perturbing eviction order" checks rely on — a
// distinction golang/groupcache's lru.Cache does not offer, which is why
// this package rolls its own instead.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[hash.OID]*list.Element
}

type cacheEntry struct {
	oid hash.OID
	obj Object
}

// NewCache returns an empty cache with the given capacity. A capacity of
// 0 or less uses DefaultCacheSize.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[hash.OID]*list.Element),
	}
}

// Add inserts or updates obj under oid, promoting it to
// most-recently-used, and evicts the least-recently-used entry if the
// cache is now over capacity.
func (c *Cache) Add(oid hash.OID, obj Object) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[oid]; ok {
		el.Value.(*cacheEntry).obj = obj
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{oid: oid, obj: obj})
	c.items[oid] = el

	for c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.ll.Remove(back)
		delete(c.items, back.Value.(*cacheEntry).oid)
	}
}

// Get returns the cached object for oid, promoting it to
// most-recently-used.
func (c *Cache) Get(oid hash.OID) (Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[oid]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).obj, true
}

// Peek returns the cached object for oid without changing its recency.
func (c *Cache) Peek(oid hash.OID) (Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[oid]
	if !ok {
		return nil, false
	}
	return el.Value.(*cacheEntry).obj, true
}

// Remove evicts oid from the cache, if present.
func (c *Cache) Remove(oid hash.OID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[oid]; ok {
		c.ll.Remove(el)
		delete(c.items, oid)
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[hash.OID]*list.Element)
}
