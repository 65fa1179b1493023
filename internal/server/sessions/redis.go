package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys in a shared Redis.
const DefaultKeyPrefix = "ta:session:"

// RedisStore keeps session values in Redis so a login flow may start and
// finish on different server instances.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to the Redis server at url
// ("redis://[:password@]host:port/db") and checks it with PING.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStoreWithClient(client, DefaultKeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client. Useful with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(sessionID, key string) string {
	return s.keyPrefix + sessionID + ":" + key
}

func (s *RedisStore) Put(ctx context.Context, sessionID, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(sessionID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Take uses GETDEL so that two concurrent callbacks cannot both consume
// the same value.
func (s *RedisStore) Take(ctx context.Context, sessionID, key string) (string, bool, error) {
	v, err := s.client.GetDel(ctx, s.key(sessionID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis getdel: %w", err)
	}
	return v, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
