package image

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/fusekit/fuse"
)

// Cache owns the session's view of the hardware array.
type Cache struct {
	dev fuse.Device

	mu        sync.Mutex
	dirty     atomic.Bool
	img       Image
	refreshes atomic.Int64
}

// NewCache returns a cache that reads dev on first use.
func NewCache(dev fuse.Device) *Cache {
	c := &Cache{dev: dev}
	c.dirty.Store(true)
	return c
}

// Get returns a copy of the cached image, refreshing it from hardware when
// the cache is dirty. The dirty flag is cleared before the hardware pass, so
// an Invalidate that lands during the pass forces another one.
func (c *Cache) Get(ctx context.Context) (Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty.Swap(false) {
		img, err := Read(ctx, c.dev)
		if err != nil {
			c.dirty.Store(true)
			return nil, err
		}
		c.img = img
		c.refreshes.Add(1)
	}
	return c.img.Clone(), nil
}

// Invalidate forces the next Get to read hardware.
func (c *Cache) Invalidate() {
	c.dirty.Store(true)
}

// Dirty reports whether the next Get will read hardware.
func (c *Cache) Dirty() bool {
	return c.dirty.Load()
}

// Refreshes returns the number of hardware read passes performed.
func (c *Cache) Refreshes() int64 {
	return c.refreshes.Load()
}

// Device returns the underlying device.
func (c *Cache) Device() fuse.Device {
	return c.dev
}
