package replay

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is a stored consumption plus its expiry deadline.
type memoryEntry struct {
	meta      Metadata
	expiresAt time.Time
}

// MemoryCache is an in-process Cache backed by a mutex-guarded map. Expired
// entries are dropped lazily on access and swept periodically in the
// background. Suitable for a single server process; multi-instance
// deployments should use RedisCache so all instances share one view.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	done    chan struct{}
	closed  sync.Once
}

// NewMemoryCache creates an in-memory replay cache. The background sweeper
// runs every sweepInterval; non-positive values default to MinTTL/4.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = MinTTL / 4
	}
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// TryConsume implements Cache.
func (c *MemoryCache) TryConsume(ctx context.Context, signature string, meta Metadata, ttl time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.entries[signature]; ok && now.Before(entry.expiresAt) {
		existing := entry.meta
		return Result{Existing: &existing}, nil
	}

	c.entries[signature] = memoryEntry{
		meta:      meta,
		expiresAt: now.Add(ttl),
	}
	return Result{FirstTime: true}, nil
}

// Peek implements Cache.
func (c *MemoryCache) Peek(ctx context.Context, signature string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[signature]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, signature)
		return nil, nil
	}
	meta := entry.meta
	return &meta, nil
}

// MarkStatus implements StatusMarker.
func (c *MemoryCache) MarkStatus(ctx context.Context, signature, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[signature]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil
	}
	entry.meta.Status = status
	c.entries[signature] = entry
	return nil
}

// Len reports the number of stored entries, expired ones included until the
// next sweep.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper.
func (c *MemoryCache) Close() error {
	c.closed.Do(func() { close(c.done) })
	return nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for signature, entry := range c.entries {
				if !now.Before(entry.expiresAt) {
					delete(c.entries, signature)
				}
			}
			c.mu.Unlock()
		}
	}
}
