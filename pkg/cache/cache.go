package cache

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Cache is a weight bounded LRU cache. Once the total weight of the entries
// exceeds the budget, least recently used entries are evicted until it fits.
type Cache interface {
	// Insert adds or replaces the value for key and marks it most recently used
	Insert(key string, value interface{}, weight int)

	// Retrieve returns the value for key and marks it most recently used
	Retrieve(key string) (interface{}, bool)

	// Weight returns the combined weight of all entries
	Weight() int

	// Budget returns the maximum combined weight
	Budget() int

	Clear()
}

type entry struct {
	key    string
	value  interface{}
	weight int

	newer *entry
	older *entry
}

type lru struct {
	log *logrus.Entry

	mu      sync.Mutex
	entries map[string]*entry
	newest  *entry
	oldest  *entry
	weight  int
	budget  int
}

// NewCache returns an empty Cache bounded by budget
func NewCache(name string, budget int) Cache {
	return &lru{
		log:     logrus.StandardLogger().WithFields(logrus.Fields{"type": "cache", "cache": name}),
		entries: make(map[string]*entry),
		budget:  budget,
	}
}

func (c *lru) Insert(key string, value interface{}, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.weight += weight - existing.weight
		existing.value = value
		existing.weight = weight
		c.promote(existing)
	} else {
		e := &entry{
			key:    key,
			value:  value,
			weight: weight,
		}
		c.pushNewest(e)
		c.entries[key] = e
		c.weight += weight
	}

	for c.weight > c.budget && c.oldest != nil {
		evicted := c.oldest
		c.unlink(evicted)
		delete(c.entries, evicted.key)
		c.weight -= evicted.weight

		c.log.WithFields(logrus.Fields{
			"key":    evicted.key,
			"weight": evicted.weight,
			"spare":  c.budget - c.weight,
		}).Trace("evicted cache entry")
	}
}

func (c *lru) Retrieve(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	c.promote(e)
	return e.value, true
}

func (c *lru) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *lru) Budget() int {
	return c.budget
}

func (c *lru) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.newest = nil
	c.oldest = nil
	c.weight = 0
}

func (c *lru) promote(e *entry) {
	if e == c.newest {
		return
	}
	c.unlink(e)
	c.pushNewest(e)
}

func (c *lru) pushNewest(e *entry) {
	e.older = c.newest
	e.newer = nil
	if c.newest != nil {
		c.newest.newer = e
	}
	c.newest = e
	if c.oldest == nil {
		c.oldest = e
	}
}

func (c *lru) unlink(e *entry) {
	if e.newer != nil {
		e.newer.older = e.older
	} else {
		c.newest = e.older
	}
	if e.older != nil {
		e.older.newer = e.newer
	} else {
		c.oldest = e.newer
	}
	e.newer = nil
	e.older = nil
}
