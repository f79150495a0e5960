package credstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/kilimopesa/internal/domain"
)

const redisKeyPrefix = "kilimo:credential:"

// RedisStore keeps the credential in redis, for portals that run on more
// than one host against the same account.
type RedisStore struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisStore wraps an existing client
func NewRedisStore(rdb redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: redisKeyPrefix + key}
}

// OpenRedis connects to addr and checks the connection
func OpenRedis(ctx context.Context, addr, password string, db int, key string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisStore(rdb, key), nil
}

// Load returns the stored credential or domain.ErrCredentialNotFound
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	value, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Save replaces the stored credential
func (s *RedisStore) Save(ctx context.Context, credential string) error {
	return s.rdb.Set(ctx, s.key, credential, 0).Err()
}

// Clear removes the stored credential
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

// Close closes the redis client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
