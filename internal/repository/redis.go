package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jack/golang-shortlink-service/internal/config"
	"github.com/jack/golang-shortlink-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	recordCachePrefix = "shortcode:"
	recordCacheTTL    = 1 * time.Hour
)

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(cfg *config.RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

// GetRecord returns a cached record, or nil on a cache miss. Callers must
// still apply the resolvability predicate at read time; a cached entry may
// have expired or been deactivated since it was populated.
func (r *RedisRepository) GetRecord(ctx context.Context, code string) (*model.ShortcodeRecord, error) {
	key := recordCachePrefix + code

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get record from cache: %w", err)
	}

	var record model.ShortcodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &record, nil
}

// SetRecord caches a record with a TTL capped at the record's own expiry, so
// stale entries cannot outlive the link.
func (r *RedisRepository) SetRecord(ctx context.Context, record *model.ShortcodeRecord) error {
	key := recordCachePrefix + record.Code

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ttl := recordCacheTTL
	if remaining := time.Until(record.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set record in cache: %w", err)
	}

	return nil
}

// DeleteRecord evicts a record from the cache. Called on deactivation and by
// the sweeper so the cache honors the soft-delete immediately.
func (r *RedisRepository) DeleteRecord(ctx context.Context, code string) error {
	key := recordCachePrefix + code

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete record from cache: %w", err)
	}

	return nil
}

func (r *RedisRepository) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
