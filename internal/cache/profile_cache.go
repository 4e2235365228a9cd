// Package cache provides a Redis-backed read-through cache for resolved
// IP profiles, consulted during report submission.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ip-report-scanner/internal/config"
	"github.com/ip-report-scanner/internal/models"
	"github.com/redis/go-redis/v9"
)

const profileKeyPrefix = "profile:"

// ProfileCache caches resolved IP profiles by normalized address
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileCache creates a profile cache connected to Redis
func NewProfileCache(cfg *config.RedisConfig, ttl time.Duration) (*ProfileCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ProfileCache{client: client, ttl: ttl}, nil
}

// NewProfileCacheWithClient wraps an existing client (used in tests)
func NewProfileCacheWithClient(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (c *ProfileCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (c *ProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a cached profile. A miss is (nil, false, nil).
func (c *ProfileCache) Get(ctx context.Context, address string) (*models.IPProfile, bool, error) {
	data, err := c.client.Get(ctx, profileKeyPrefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached profile: %w", err)
	}

	var profile models.IPProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten on
		// the next Put.
		return nil, false, nil
	}

	return &profile, true, nil
}

// Put caches a profile under its normalized address
func (c *ProfileCache) Put(ctx context.Context, profile *models.IPProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	if err := c.client.Set(ctx, profileKeyPrefix+profile.Address, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

// Invalidate drops a cached profile (used when the country resolves)
func (c *ProfileCache) Invalidate(ctx context.Context, address string) error {
	return c.client.Del(ctx, profileKeyPrefix+address).Err()
}
