package job

import (
	"sync"
)

// StatusCache keeps the most recent job statuses, so the daemon can
// answer "what happened to my job" for a while after it has run.
type StatusCache struct {
	// Size is the number of statuses to store. When full, the oldest
	// entries are evicted to make room.
	Size int

	// Entries live in a slice to make fifo eviction easy. Efficiency
	// doesn't matter because the cache is small and computers are
	// fast.
	cache []cacheEntry
	sync.RWMutex
}

type cacheEntry struct {
	ID     ID
	Status Status
}

func (c *StatusCache) SetStatus(id ID, status Status) {
	if c.Size <= 0 {
		return
	}
	c.Lock()
	defer c.Unlock()
	if i := c.statusIndex(id); i >= 0 {
		c.cache[i].Status = status
		return
	}
	if c.Size <= len(c.cache) {
		c.cache = c.cache[len(c.cache)-(c.Size-1):]
	}
	c.cache = append(c.cache, cacheEntry{
		ID:     id,
		Status: status,
	})
}

func (c *StatusCache) Status(id ID) (Status, bool) {
	c.RLock()
	defer c.RUnlock()
	i := c.statusIndex(id)
	if i < 0 {
		return Status{}, false
	}
	return c.cache[i].Status, true
}

// statusIndex must be called with the lock held. Entries are sorted
// by arrival time, not id, so no binary search.
func (c *StatusCache) statusIndex(id ID) int {
	for i := range c.cache {
		if c.cache[i].ID == id {
			return i
		}
	}
	return -1
}
