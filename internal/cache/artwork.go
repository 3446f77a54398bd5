package cache

import (
	"crypto/md5"
	"fmt"
	"sync"
	"time"
)

// ArtworkID derives the cache key for an artwork blob from its content, so
// identical embedded images across an album's tracks share one entry.
func ArtworkID(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

type entry struct {
	data       []byte
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

// ArtworkCache is an in-memory cache for artwork blobs keyed by content
// hash. It keeps recently extracted artwork available to the UI layer
// without re-reading audio files.
type ArtworkCache struct {
	items map[string]*entry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewArtworkCache creates an artwork cache whose entries expire after ttl.
func NewArtworkCache(ttl time.Duration) *ArtworkCache {
	c := &ArtworkCache{
		items: make(map[string]*entry),
		ttl:   ttl,
	}

	go c.cleanupExpired()

	return c
}

// Put stores an artwork blob and returns its content-derived id.
func (c *ArtworkCache) Put(data []byte) string {
	id := ArtworkID(data)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[id] = &entry{
		data:       data,
		expiration: time.Now().Add(c.ttl),
	}
	return id
}

// Get retrieves an artwork blob by id.
func (c *ArtworkCache) Get(id string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.items[id]
	if !exists || e.expired() {
		return nil, false
	}
	return e.data, true
}

// Size returns the number of cached blobs.
func (c *ArtworkCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// cleanupExpired removes expired entries periodically.
func (c *ArtworkCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for id, e := range c.items {
			if e.expired() {
				delete(c.items, id)
			}
		}
		c.mutex.Unlock()
	}
}
