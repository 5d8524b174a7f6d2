package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries as JSON strings and tracks each session's keys
// in a set so the whole session can be dropped at once.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache builds a cache under "<prefix>:cache:".
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "sail"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) entryKey(sessionID, key string) string {
	return r.prefix + ":cache:" + sessionID + ":" + key
}

func (r *RedisCache) indexKey(sessionID string) string {
	return r.prefix + ":cache-index:" + sessionID
}

func (r *RedisCache) Get(ctx context.Context, sessionID, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.entryKey(sessionID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is a miss.
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (r *RedisCache) Set(ctx context.Context, sessionID, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	k := r.entryKey(sessionID, key)
	index := r.indexKey(sessionID)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, raw, r.ttl)
		pipe.SAdd(ctx, index, k)
		if r.ttl > 0 {
			pipe.Expire(ctx, index, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, sessionID string) error {
	index := r.indexKey(sessionID)
	keys, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("redis cache index: %w", err)
	}
	keys = append(keys, index)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis cache invalidate: %w", err)
	}
	return nil
}
