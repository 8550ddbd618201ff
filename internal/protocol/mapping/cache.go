package mapping

import (
	"sync"
	"sync/atomic"
	"time"

	"word_armor/internal/dictionary"
	"word_armor/internal/protocol/permutation"

	"golang.org/x/sync/singleflight"
)

type (
	cacheKey struct {
		seed   permutation.Seed
		date   string
		digest string
	}

	// Cache holds one Mapping per (seed, date, dictionary). Concurrent first
	// requests for the same key share a single build.
	Cache struct {
		mu      sync.RWMutex
		entries map[cacheKey]*Mapping
		group   singleflight.Group
		builds  atomic.Int64
	}
)

func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]*Mapping),
	}
}

func (c *Cache) Get(dict *dictionary.Dictionary, seed permutation.Seed, date time.Time) (*Mapping, error) {
	key := cacheKey{seed: seed, date: permutation.DateKey(date), digest: dict.Digest()}

	c.mu.RLock()
	m, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := c.group.Do(key.seed.String()+"/"+key.date+"/"+key.digest, func() (any, error) {
		c.mu.RLock()
		m, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return m, nil
		}

		c.builds.Add(1)
		m, err := New(dict, seed, date)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Mapping), nil
}

// Prune drops mappings for dates before the calendar day of before.
func (c *Cache) Prune(before time.Time) int {
	cutoff := permutation.DateKey(before)

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.date < cutoff {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Builds counts mapping constructions attempted by this cache.
func (c *Cache) Builds() int64 { return c.builds.Load() }
