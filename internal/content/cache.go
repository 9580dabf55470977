package content

import (
	"context"
	"sync"
	"time"

	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/progress"
)

// DifficultyCache holds recently read course placements.
type DifficultyCache interface {
	Get(ctx context.Context, learnerID, courseID string) (progress.Difficulty, bool, error)
	Set(ctx context.Context, learnerID, courseID string, d progress.Difficulty) error
	Invalidate(ctx context.Context, learnerID, courseID string) error
}

// NopDifficultyCache never holds anything.
type NopDifficultyCache struct{}

func (NopDifficultyCache) Get(context.Context, string, string) (progress.Difficulty, bool, error) {
	return "", false, nil
}

func (NopDifficultyCache) Set(context.Context, string, string, progress.Difficulty) error {
	return nil
}

func (NopDifficultyCache) Invalidate(context.Context, string, string) error {
	return nil
}

// MemoryDifficultyCache is a process-local cache without expiry.
type MemoryDifficultyCache struct {
	mu      sync.RWMutex
	entries map[string]progress.Difficulty
}

func NewMemoryDifficultyCache() *MemoryDifficultyCache {
	return &MemoryDifficultyCache{entries: make(map[string]progress.Difficulty)}
}

func (c *MemoryDifficultyCache) Get(_ context.Context, learnerID, courseID string) (progress.Difficulty, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[difficultyKey(learnerID, courseID)]
	return d, ok, nil
}

func (c *MemoryDifficultyCache) Set(_ context.Context, learnerID, courseID string, d progress.Difficulty) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[difficultyKey(learnerID, courseID)] = d
	return nil
}

func (c *MemoryDifficultyCache) Invalidate(_ context.Context, learnerID, courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, difficultyKey(learnerID, courseID))
	return nil
}

// RedisDifficultyCache stores placements in Redis/Dragonfly with a TTL.
type RedisDifficultyCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisDifficultyCache(c *cache.Cache, ttl time.Duration) *RedisDifficultyCache {
	return &RedisDifficultyCache{cache: c, ttl: ttl}
}

func (c *RedisDifficultyCache) Get(ctx context.Context, learnerID, courseID string) (progress.Difficulty, bool, error) {
	v, ok, err := c.cache.GetString(ctx, difficultyKey(learnerID, courseID))
	if err != nil || !ok {
		return "", false, err
	}
	d := progress.Difficulty(v)
	if !d.Valid() {
		return "", false, nil
	}
	return d, true, nil
}

func (c *RedisDifficultyCache) Set(ctx context.Context, learnerID, courseID string, d progress.Difficulty) error {
	return c.cache.SetString(ctx, difficultyKey(learnerID, courseID), string(d), c.ttl)
}

func (c *RedisDifficultyCache) Invalidate(ctx context.Context, learnerID, courseID string) error {
	return c.cache.Delete(ctx, difficultyKey(learnerID, courseID))
}

func difficultyKey(learnerID, courseID string) string {
	return cache.Key("difficulty", learnerID, courseID)
}
