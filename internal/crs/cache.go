package crs

import (
	"container/list"
	"sync"
)

const DefaultCacheCapacity = 64

// Cache memoises a Resolver, failures included, with LRU eviction. Its
// lifetime is that of its owner; there is no process-wide instance.
type Cache struct {
	next     Resolver
	capacity int

	mu      sync.Mutex
	lruList *list.List
	items   map[int32]*list.Element
}

type cacheEntry struct {
	srid int32
	crs  *CRS
	err  error
}

func NewCache(next Resolver, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		next:     next,
		capacity: capacity,
		lruList:  list.New(),
		items:    make(map[int32]*list.Element),
	}
}

func (c *Cache) Resolve(srid int32) (*CRS, error) {
	c.mu.Lock()
	if elem, ok := c.items[srid]; ok {
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*cacheEntry)
		c.mu.Unlock()
		return e.crs, e.err
	}
	c.mu.Unlock()

	// Resolve outside the lock; a concurrent miss for the same id just
	// resolves twice.
	res, err := c.next.Resolve(srid)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[srid]; ok {
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*cacheEntry)
		return e.crs, e.err
	}
	c.items[srid] = c.lruList.PushFront(&cacheEntry{srid: srid, crs: res, err: err})
	for c.lruList.Len() > c.capacity {
		back := c.lruList.Back()
		c.lruList.Remove(back)
		delete(c.items, back.Value.(*cacheEntry).srid)
	}
	return res, err
}

// Len returns the number of cached ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lruList.Init()
	c.items = make(map[int32]*list.Element)
}
