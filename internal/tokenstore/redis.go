package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for token hashes.
	KeyPrefix = "campuschat:tokens:"

	// DefaultTTL bounds how long an unused token pair is kept. Every Save
	// refreshes it.
	DefaultTTL = 30 * 24 * time.Hour
)

// RedisConfig holds Redis connection settings for the token store.
type RedisConfig struct {
	Addr    string
	Profile string        // key suffix, lets several accounts share one Redis
	TTL     time.Duration // key expiry, refreshed on save
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:    "localhost:6379",
		Profile: "default",
		TTL:     DefaultTTL,
	}
}

// Redis stores tokens in a Redis hash. Useful when several local processes
// (the terminal UI, a headless bot) share one login.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: config.Addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("tokenstore: redis connection failed: %w", err)
	}

	if config.Profile == "" {
		config.Profile = "default"
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &Redis{client: client, key: KeyPrefix + config.Profile, ttl: config.TTL}, nil
}

// Key returns the hash key this store writes.
func (s *Redis) Key() string { return s.key }

func (s *Redis) Load(ctx context.Context) (Tokens, error) {
	var stored struct {
		Access  string `redis:"access"`
		Refresh string `redis:"refresh"`
		SavedAt int64  `redis:"saved_at"`
	}
	if err := s.client.HGetAll(ctx, s.key).Scan(&stored); err != nil {
		return Tokens{}, fmt.Errorf("tokenstore: redis load: %w", err)
	}
	if stored.Access == "" {
		return Tokens{}, ErrNotFound
	}
	t := Tokens{Access: stored.Access, Refresh: stored.Refresh}
	if stored.SavedAt > 0 {
		t.SavedAt = time.Unix(stored.SavedAt, 0).UTC()
	}
	return t, nil
}

// Save writes the pair and refreshes the TTL.
func (s *Redis) Save(ctx context.Context, t Tokens) error {
	savedAt := t.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.key, map[string]interface{}{
		"access":   t.Access,
		"refresh":  t.Refresh,
		"saved_at": savedAt.Unix(),
	})
	pipe.Expire(ctx, s.key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tokenstore: redis save: %w", err)
	}
	return nil
}

func (s *Redis) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("tokenstore: redis clear: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of the stored pair.
func (s *Redis) TTL(ctx context.Context) (time.Duration, error) {
	return s.client.TTL(ctx, s.key).Result()
}

// Close closes the Redis connection.
func (s *Redis) Close() error {
	return s.client.Close()
}
