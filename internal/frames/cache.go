package frames

// Cache maps time keys to frame handles with a fixed capacity. Eviction is
// by insertion order: a hit does not refresh an entry. The cache holds one
// reference on every handle it stores. It is not safe for concurrent use.
type Cache struct {
	limit   int
	handles *HandleStore
	order   []string
	entries map[string]*Handle
}

func NewCache(limit int, handles *HandleStore) *Cache {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	return &Cache{
		limit:   limit,
		handles: handles,
		entries: make(map[string]*Handle),
	}
}

func (c *Cache) Get(key string) (*Handle, bool) {
	h, ok := c.entries[key]
	return h, ok
}

// Put stores h under key, evicting the oldest entries beyond the limit.
// It returns the evicted keys.
func (c *Cache) Put(key string, h *Handle) []string {
	c.handles.Retain(h)
	if old, ok := c.entries[key]; ok {
		c.entries[key] = h
		c.handles.Release(old)
		return nil
	}

	c.entries[key] = h
	c.order = append(c.order, key)

	var evicted []string
	for len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.handles.Release(c.entries[oldest])
		delete(c.entries, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (c *Cache) Len() int {
	return len(c.entries)
}

// keys returns the cached keys, oldest first.
func (c *Cache) keys() []string {
	return append([]string(nil), c.order...)
}

// Clear releases every entry.
func (c *Cache) Clear() {
	for _, key := range c.order {
		c.handles.Release(c.entries[key])
	}
	c.order = nil
	c.entries = make(map[string]*Handle)
}
