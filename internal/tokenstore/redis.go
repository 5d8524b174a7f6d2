package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// RedisStore keeps each session's credential in a Redis hash.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store. Keys are "<prefix>:session:<id>" and expire
// after ttl of inactivity (0 disables expiry).
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sail"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":session:" + sessionID
}

// Save replaces the hash in one MULTI/EXEC so readers never see a partial credential.
func (s *RedisStore) Save(ctx context.Context, sessionID string, cred domain.Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	fields := encodeFields(cred)
	key := s.key(sessionID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) == 0 {
			return nil
		}
		values := make([]any, 0, len(fields)*2)
		for k, v := range fields {
			values = append(values, k, v)
		}
		pipe.HSet(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save credential: %w", err)
	}
	return nil
}

// Load reads the hash and refreshes its expiry.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (domain.Credential, error) {
	key := s.key(sessionID)

	var read *redis.MapStringStringCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		read = pipe.HGetAll(ctx, key)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("redis load credential: %w", err)
	}
	return decodeFields(read.Val())
}

// Clear deletes the hash.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis clear credential: %w", err)
	}
	return nil
}
