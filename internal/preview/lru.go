package preview

import (
	"container/list"
	"sync"
)

// Key identifies one preview.
type Key struct {
	SeriesID string
	FrameID  int
	Bin      int
	Quality  int
}

type lruEntry struct {
	key  Key
	data []byte
}

// LRU is a byte-budgeted least-recently-used cache of encoded previews. The
// bound is on total resident bytes, not entry count.
type LRU struct {
	mu     sync.Mutex
	budget int64
	size   int64
	order  *list.List
	items  map[Key]*list.Element
}

// NewLRU returns an empty cache holding at most budget bytes.
func NewLRU(budget int64) *LRU {
	return &LRU{
		budget: budget,
		order:  list.New(),
		items:  map[Key]*list.Element{},
	}
}

// Get returns the cached bytes for key and marks the entry most recently used.
func (c *LRU) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).data, true
}

// Put stores data under key as the most recently used entry, evicting least
// recently used entries until it fits. Data larger than the whole budget is
// not retained and evicts nothing, so the size never exceeds the budget and a
// zero budget disables the cache.
func (c *LRU) Put(key Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	size := int64(len(data))
	if size > c.budget {
		return
	}
	for c.size+size > c.budget {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
	c.items[key] = c.order.PushFront(&lruEntry{key: key, data: data})
	c.size += size
}

func (c *LRU) removeElement(elem *list.Element) {
	entry := c.order.Remove(elem).(*lruEntry)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.data))
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Size returns the resident bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Budget returns the byte bound.
func (c *LRU) Budget() int64 {
	return c.budget
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.items)
	c.size = 0
}
