package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "infradash:latest:"
	componentsSet = "infradash:components"
)

// RedisCache is the LatestValues implementation backed by Redis, used
// when dashboards are served from more than one process.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func makeKey(component string) string {
	return keyPrefix + component
}

// Put stores the JSON-encoded entry and tracks the component name in a set
func (r *RedisCache) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, makeKey(entry.Component), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", makeKey(entry.Component), err)
	}
	if err := r.client.SAdd(ctx, componentsSet, entry.Component).Err(); err != nil {
		return fmt.Errorf("failed to SADD %s: %w", entry.Component, err)
	}
	return nil
}

// Get retrieves the latest entry for a component
func (r *RedisCache) Get(ctx context.Context, component string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, makeKey(component)).Result()
	if err != nil {
		if err == redis.Nil {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to GET %s: %w", makeKey(component), err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal cache entry for %s: %w", component, err)
	}
	return entry, true, nil
}

// Components returns the names of all cached components
func (r *RedisCache) Components(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, componentsSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS %s: %w", componentsSet, err)
	}
	return names, nil
}

// Len returns the number of cached components
func (r *RedisCache) Len(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, componentsSet).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to SCARD %s: %w", componentsSet, err)
	}
	return int(n), nil
}

// Ping verifies Redis connectivity
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
