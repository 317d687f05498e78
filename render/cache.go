package render

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds encoded render results keyed by the full request, bounded in
// size with least-recently-used eviction. It is safe for concurrent use.
type Cache struct {
	lru *lru.Cache[Request, *Image]
}

// DefaultCacheSize is the render cache bound used when nothing else is
// configured.
const DefaultCacheSize = 100

// NewCache creates a cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[Request, *Image](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func (c *Cache) get(req Request) (*Image, bool) {
	return c.lru.Get(req)
}

func (c *Cache) add(req Request, img *Image) {
	c.lru.Add(req, img)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }
