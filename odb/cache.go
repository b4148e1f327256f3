package odb

import (
	"container/list"
	"sync"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// rawCache is an OID-keyed LRU cache of raw (type, content) pairs, the
// form objects pass through the database in before any caller parses
// them into a typed object.Object. Structured the same way as
// object.Cache (Get promotes, Peek does not) for the same reason: the
// existence checks in Has must not perturb eviction order.
type rawCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[hash.OID]*list.Element
}

type rawCacheEntry struct {
	oid     hash.OID
	typ     object.Type
	content []byte
}

func newRawCache(capacity int) *rawCache {
	if capacity <= 0 {
		capacity = object.DefaultCacheSize
	}
	return &rawCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[hash.OID]*list.Element),
	}
}

func (c *rawCache) Add(oid hash.OID, typ object.Type, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[oid]; ok {
		el.Value.(*rawCacheEntry).typ = typ
		el.Value.(*rawCacheEntry).content = content
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&rawCacheEntry{oid: oid, typ: typ, content: content})
	c.items[oid] = el

	for c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.ll.Remove(back)
		delete(c.items, back.Value.(*rawCacheEntry).oid)
	}
}

func (c *rawCache) Get(oid hash.OID) (object.Type, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[oid]
	if !ok {
		return 0, nil, false
	}
	c.ll.MoveToFront(el)
	e := el.Value.(*rawCacheEntry)
	return e.typ, e.content, true
}

func (c *rawCache) Peek(oid hash.OID) (object.Type, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[oid]
	if !ok {
		return 0, nil, false
	}
	e := el.Value.(*rawCacheEntry)
	return e.typ, e.content, true
}
