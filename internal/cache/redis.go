package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "gameloader"
	keySeparator = ":"
	scanCount    = 1000
	// staleRetention keeps expired entries around so stale reads still work.
	staleRetention = 24 * time.Hour
)

// RedisStore keeps records in redis under gameloader:<namespace>:<key>.
type RedisStore struct {
	cl *redis.Client
}

// NewRedisStore connects to url and verifies the connection with PING.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	cl := redis.NewClient(opt)
	if _, err := cl.Ping(ctx).Result(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStore{cl: cl}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(cl *redis.Client) *RedisStore {
	return &RedisStore{cl: cl}
}

func getKey(parts ...string) string {
	return keyPrefix + keySeparator + strings.Join(parts, keySeparator)
}

func (s *RedisStore) Load(ctx context.Context, namespace, key string) (Record, bool, error) {
	val, err := s.cl.Get(ctx, getKey(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("cannot get %s/%s: %w", namespace, key, err)
	}

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) Save(ctx context.Context, namespace, key string, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", namespace, key, err)
	}

	expiration := time.Duration(0)
	if ttl > 0 {
		expiration = ttl + staleRetention
	}
	if err := s.cl.Set(ctx, getKey(namespace, key), data, expiration).Err(); err != nil {
		return fmt.Errorf("cannot set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.cl.Del(ctx, getKey(namespace, key)).Err(); err != nil {
		return fmt.Errorf("cannot delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, namespace string) error {
	pattern := getKey(namespace, "*")
	var cursor uint64

	for {
		keys, nextCursor, err := s.cl.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("error scanning keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.cl.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cannot delete keys: %w", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the redis connection pool.
func (s *RedisStore) Close() error {
	return s.cl.Close()
}
