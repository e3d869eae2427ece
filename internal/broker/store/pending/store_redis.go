package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authgate/internal/broker/models"
	"authgate/pkg/platform/sentinel"
)

// RedisStore is the production implementation for multi-instance
// deployments. Redis owns TTL expiry, and GETDEL gives the atomic
// fetch-and-delete that single-use consumption requires.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed pending store. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, stateToken string, record models.PendingAuthorization, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal pending authorization: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+stateToken, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save pending authorization: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, stateToken string) (models.PendingAuthorization, error) {
	payload, err := s.client.GetDel(ctx, keyPrefix+stateToken).Result()
	if errors.Is(err, redis.Nil) {
		return models.PendingAuthorization{}, fmt.Errorf("pending authorization not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return models.PendingAuthorization{}, fmt.Errorf("consume pending authorization: %w", err)
	}

	var record models.PendingAuthorization
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		// A record we wrote but cannot read back is a schema violation, not
		// a miss. Fail closed rather than continuing without PKCE data.
		return models.PendingAuthorization{}, fmt.Errorf("unmarshal pending authorization: %w: %w", err, sentinel.ErrInvalidState)
	}
	return record, nil
}
