package smscode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCodeStore implements CodeStore on Redis. Expiry rides on key TTLs and
// the attempt bound on INCR, so multiple instances can share one store without
// extra coordination.
type RedisCodeStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCodeStore creates a new Redis-backed code store
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{
		client:    client,
		keyPrefix: "stepup:smscode",
	}
}

func (s *RedisCodeStore) codeKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, userID)
}

func (s *RedisCodeStore) attemptsKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:attempts:%s", s.keyPrefix, userID)
}

// Put stores a code with a TTL and clears the attempt counter
func (s *RedisCodeStore) Put(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.codeKey(userID), code, ttl)
		pipe.Del(ctx, s.attemptsKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store sms code: %w", err)
	}
	return nil
}

// Get returns the outstanding code; Redis expires it on its own
func (s *RedisCodeStore) Get(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := s.client.Get(ctx, s.codeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCodePending
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sms code: %w", err)
	}
	return code, nil
}

// IncrAttempts counts one verification attempt with INCR. The counter gets
// the code's TTL on its first increment so it cannot outlive the code by much.
func (s *RedisCodeStore) IncrAttempts(ctx context.Context, userID uuid.UUID, ttl time.Duration) (int, error) {
	key := s.attemptsKey(userID)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sms attempt: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to expire sms attempt counter: %w", err)
		}
	}
	return int(count), nil
}

// Delete removes the outstanding code and its attempt counter
func (s *RedisCodeStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, s.codeKey(userID), s.attemptsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete sms code: %w", err)
	}
	return nil
}
