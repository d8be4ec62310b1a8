package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// AnalysisCache maps an image digest to the analysis text produced for it.
type AnalysisCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnalysisCache(client *redisv9.Client, ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AnalysisCache{client: client, ttl: ttl}
}

func (c *AnalysisCache) GetAnalysis(ctx context.Context, digest string) (string, bool, error) {
	raw, err := c.client.Get(ctx, c.key(digest)).Result()
	if errors.Is(err, redisv9.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get analysis failed: %w", err)
	}
	return raw, true, nil
}

func (c *AnalysisCache) SetAnalysis(ctx context.Context, digest, analysis string) error {
	if err := c.client.Set(ctx, c.key(digest), analysis, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set analysis failed: %w", err)
	}
	return nil
}

func (c *AnalysisCache) key(digest string) string {
	return "pcb:analysis:" + digest
}
