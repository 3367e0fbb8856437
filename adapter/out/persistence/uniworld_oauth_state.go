// Package persistence provides database adapters.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
)

// oauthStateKey is the Redis key prefix for pending OAuth states.
const oauthStateKey = "oauth:state:"

// RedisStateStore backs the CSRF state token flow with Redis. TTL
// expiry and atomic GETDEL give single-use semantics for free.
type RedisStateStore struct {
	client *redis.Client
}

var _ out.StateStore = (*RedisStateStore)(nil)

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save binds the state token to its flow with a TTL. The value is
// "provider:userID"; the token itself stays opaque to the client.
func (s *RedisStateStore) Save(ctx context.Context, state string, provider domain.Provider, userID uuid.UUID, ttl time.Duration) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if userID == uuid.Nil {
		return errors.New("userID cannot be nil")
	}

	key := oauthStateKey + state
	value := provider.String() + ":" + userID.String()
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	return nil
}

// Consume validates and deletes the state in one atomic GETDEL, so a
// replayed state finds nothing.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (domain.Provider, uuid.UUID, error) {
	if state == "" {
		return "", uuid.Nil, out.ErrStateNotFound
	}

	key := oauthStateKey + state
	value, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", uuid.Nil, out.ErrStateNotFound
	}
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("validate oauth state: %w", err)
	}

	providerStr, userIDStr, found := strings.Cut(value, ":")
	if !found {
		return "", uuid.Nil, fmt.Errorf("corrupt oauth state value: %q", value)
	}
	provider, ok := domain.ParseProvider(providerStr)
	if !ok {
		return "", uuid.Nil, fmt.Errorf("corrupt oauth state provider: %q", providerStr)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("corrupt oauth state user: %w", err)
	}
	return provider, userID, nil
}
