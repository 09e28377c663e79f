package artifact

import (
	"context"
	"sync"

	"github.com/jmerrifield20/qpac/internal/pac"
)

// MemoryCache is a volatile Cache. It is lost on restart.
type MemoryCache struct {
	mu     sync.RWMutex
	bodies map[string]string
	latest string
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{bodies: make(map[string]string)}
}

// Upload implements Cache.
func (c *MemoryCache) Upload(_ context.Context, a pac.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies[a.Hash] = a.Body
	return nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, hash string) (pac.Artifact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	body, ok := c.bodies[hash]
	if !ok {
		return pac.Artifact{}, ErrNotFound
	}
	return pac.Artifact{Hash: hash, Body: body}, nil
}

// SetLatest implements Cache.
func (c *MemoryCache) SetLatest(_ context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = hash
	return nil
}

// Latest implements Cache.
func (c *MemoryCache) Latest(_ context.Context) (pac.Artifact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == "" {
		return pac.Artifact{}, ErrNotFound
	}
	body, ok := c.bodies[c.latest]
	if !ok {
		return pac.Artifact{}, ErrNotFound
	}
	return pac.Artifact{Hash: c.latest, Body: body}, nil
}
