package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/verbatim/internal/domain"
)

// RedisStore keeps entries as plain string keys. Durability follows the
// server's persistence settings.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "verbatim:"
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// Get implements domain.UnitCache.
func (s *RedisStore) Get(ctx context.Context, key domain.UnitKey) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	val, err := s.client.Get(ctx, RedisKey(s.prefix, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.IOError("redis get "+key.String(), err)
	}
	return val, true, nil
}

// Put implements domain.UnitCache.
func (s *RedisStore) Put(ctx context.Context, key domain.UnitKey, text string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	trimmed, err := normalize(key, text)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, RedisKey(s.prefix, key), trimmed, 0).Result()
	if err != nil {
		return domain.IOError("redis setnx "+key.String(), err)
	}
	if !ok {
		return domain.CacheConflictError(key)
	}
	return nil
}

// Close implements domain.UnitCache.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ domain.UnitCache = (*RedisStore)(nil)
