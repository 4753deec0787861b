package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "csrf:"

// RedisStore shares tokens between instances. Expiry is left to Redis key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(accountID string) string {
	return redisKeyPrefix + accountID
}

func (s *RedisStore) Issue(ctx context.Context, accountID string) (string, time.Time, error) {
	token, err := newToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(s.ttl)
	if err := s.client.Set(ctx, s.key(accountID), token, s.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("store csrf token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *RedisStore) Validate(ctx context.Context, accountID, token string) error {
	stored, err := s.client.Get(ctx, s.key(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("read csrf token: %w", err)
	}

	if !tokensEqual(stored, token) {
		return ErrTokenInvalid
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, accountID string) error {
	if err := s.client.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("revoke csrf token: %w", err)
	}
	return nil
}

// Sweep is a no-op; Redis expires keys itself.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
