package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through transcript cache keyed by video ID. It sits outside
// the Extractor: callers check it before extraction and write after.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(videoID string) string {
	return "transcript:" + videoID
}

// Get returns the cached transcript and whether it was present.
func (c *Cache) Get(ctx context.Context, videoID string) (string, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(videoID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return val, true, nil
}

// Set stores a transcript under the configured TTL.
func (c *Cache) Set(ctx context.Context, videoID, transcript string) error {
	if err := c.client.Set(ctx, cacheKey(videoID), transcript, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Touch resets the TTL on a cached transcript so a dedup hit counts as a
// fresh access for eviction purposes.
func (c *Cache) Touch(ctx context.Context, videoID string) error {
	if err := c.client.Expire(ctx, cacheKey(videoID), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}
