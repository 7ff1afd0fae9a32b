package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetwatch/internal/logger"
	"fleetwatch/internal/models"
)

// ThresholdCache is a read-through Redis cache in front of a
// ThresholdStore. Thresholds are read on every evaluation, so a short
// TTL keeps the backing store off the hot path without letting config
// changes go stale for long.
type ThresholdCache struct {
	client  *redis.Client
	backing ThresholdStore
	ttl     time.Duration
}

// NewThresholdCache connects to Redis and wraps the backing store
func NewThresholdCache(addr string, db int, ttl time.Duration, backing ThresholdStore) (*ThresholdCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		DB:         db,
		MaxRetries: 3,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &ThresholdCache{
		client:  client,
		backing: backing,
		ttl:     ttl,
	}, nil
}

func cacheKey(deviceID string, metric models.Metric) string {
	return fmt.Sprintf("thresholds:%s:%s", deviceID, metric)
}

// GetThresholds serves from cache, falling back to the backing store.
// Cache failures degrade to a direct lookup rather than an error.
func (c *ThresholdCache) GetThresholds(ctx context.Context, deviceID string, metric models.Metric) ([]models.Threshold, error) {
	log := logger.WithComponent("threshold_cache")
	k := cacheKey(deviceID, metric)

	data, err := c.client.Get(ctx, k).Bytes()
	if err == nil {
		var rows []models.Threshold
		if err := json.Unmarshal(data, &rows); err == nil {
			return rows, nil
		}
		log.Warn().Str("key", k).Msg("discarding undecodable cache entry")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", k).Msg("redis get failed, reading through")
	}

	rows, err := c.backing.GetThresholds(ctx, deviceID, metric)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rows); err == nil {
		if err := c.client.Set(ctx, k, payload, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("redis set failed")
		}
	}

	return rows, nil
}

// Invalidate drops the cached entry for a device metric
func (c *ThresholdCache) Invalidate(ctx context.Context, deviceID string, metric models.Metric) error {
	return c.client.Del(ctx, cacheKey(deviceID, metric)).Err()
}

// Close releases the Redis client
func (c *ThresholdCache) Close() error {
	return c.client.Close()
}
