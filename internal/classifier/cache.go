package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/mikey/image-mod-relay/internal/core"
	"go.uber.org/zap"
)

type cacheEntry struct {
	scores    []core.LabelScore
	source    string
	expiresAt time.Time
}

// ResultCache is an in-memory store of classification results keyed by
// the SHA-256 of the image bytes
type ResultCache struct {
	entries     map[string]*cacheEntry
	mu          sync.RWMutex
	ttl         time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewResultCache creates a cache and starts its background cleanup
func NewResultCache(ttl, cleanupFreq time.Duration, logger *zap.Logger) *ResultCache {
	cache := &ResultCache{
		entries:     make(map[string]*cacheEntry),
		ttl:         ttl,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache
}

// Key returns the cache key for image bytes
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached scores for key
func (c *ResultCache) Get(key string) ([]core.LabelScore, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, "", false
	}

	scores := make([]core.LabelScore, len(entry.scores))
	copy(scores, entry.scores)
	return scores, entry.source, true
}

// Set stores scores for key
func (c *ResultCache) Set(key string, scores []core.LabelScore, source string) {
	stored := make([]core.LabelScore, len(scores))
	copy(stored, scores)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{
		scores:    stored,
		source:    source,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Cleanup removes expired entries
func (c *ResultCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiredCount := 0

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired classification results", zap.Int("expired_count", expiredCount))
}

// startCleanupTask starts a background task to clean up expired entries
func (c *ResultCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (c *ResultCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
