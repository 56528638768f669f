package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"receivables/internal/config"
	"receivables/internal/models"
)

const (
	keyPrefix             = "receivables:"
	notificationConfigKey = keyPrefix + "notification_config"
)

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// NewRedisClient opens a client and logs (without failing) when the first
// ping does not succeed.
func NewRedisClient(cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis ping failed on initialization")
	} else {
		logger.Debug().Str("addr", cfg.Addr).Msg("redis connection established")
	}
	return client
}

// RedisConfigStore keeps the notification policy as a JSON document.
type RedisConfigStore struct {
	client *redis.Client
}

func NewRedisConfigStore(client *redis.Client) *RedisConfigStore {
	return &RedisConfigStore{client: client}
}

// Get returns nil, nil when no policy has been saved yet.
func (r *RedisConfigStore) Get(ctx context.Context) (*models.NotificationConfig, error) {
	data, err := r.client.Get(ctx, notificationConfigKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cfg models.NotificationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode notification config: %w", err)
	}
	return &cfg, nil
}

func (r *RedisConfigStore) Save(ctx context.Context, cfg *models.NotificationConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, notificationConfigKey, data, 0).Err()
}

func (r *RedisConfigStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisRateLimiter is a fixed-window counter shared by every replica.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (r *RedisRateLimiter) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := keyPrefix + "ratelimit:" + key
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return true, err
	}

	// expiry is set on the first hit of the window
	if count == 1 {
		r.client.Expire(ctx, cacheKey, window)
	}

	return count > int64(limit), nil
}
