// Package cache provides the Redis client shared by the cache-backed
// components and the query embedding cache.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

// NewRedisClient connects to cfg.RedisAddr and pings it.
func NewRedisClient(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	if log != nil {
		log.Info("connected to Redis", "addr", cfg.RedisAddr)
	}
	return client, nil
}
