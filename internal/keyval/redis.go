package keyval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairbox-app/pairbox/internal/apperrors"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultOpTimeout   = 3 * time.Second
)

// Redis backed store with sensible defaults
type RedisConfig struct {
	// Address to connect to, e.g. "localhost:6379"
	// Required to be set
	Addr string

	Password string
	DB       int

	// Per-operation timeouts. If not set defaults are used.
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address must not be empty")
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.DialTimeout, defaultDialTimeout)
	setDefaultDuration(&cfg.OpTimeout, defaultOpTimeout)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("can't reach redis at %s. Err: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, storeError(err)
	}
	return created, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, redis.Nil):
		return "", ErrKeyNotFound
	default:
		return "", storeError(err)
	}
}

func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, storeError(err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	value, err := s.client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, storeError(err)
	}
	return value, nil
}

func (s *RedisStore) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	value, err := s.client.DecrBy(ctx, key, n).Result()
	if err != nil {
		return 0, storeError(err)
	}
	return value, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// storeError keeps the retryable kind matchable with errors.Is while
// preserving the redis error text
func storeError(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnavailable, err)
}
