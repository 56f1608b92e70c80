package cachemem

import (
	"context"
	"sync"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"
)

type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value     domain.PublicKeyMaterial
	expiresAt time.Time
	hasExpiry bool
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, name string) (*domain.PublicKeyMaterial, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok {
		return nil, false, nil
	}
	if entry.hasExpiry && c.now().After(entry.expiresAt) {
		delete(c.entries, name)
		return nil, false, nil
	}
	value := entry.value
	if value.PEMCRC32C != nil {
		crc := *value.PEMCRC32C
		value.PEMCRC32C = &crc
	}
	return &value, true, nil
}

func (c *Cache) Put(ctx context.Context, name string, material domain.PublicKeyMaterial, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{value: material}
	if ttl > 0 {
		entry.hasExpiry = true
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[name] = entry
	return nil
}

var _ usecase.PublicKeyCache = (*Cache)(nil)
