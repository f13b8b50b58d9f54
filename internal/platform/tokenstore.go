package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SecretStore persists rotating credentials shared between processes.
type SecretStore interface {
	// Get returns "" and no error when key is unset.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

const secretPrefix = "recsync:secret:"

// RedisSecretStore keeps secrets in Redis without expiry.
type RedisSecretStore struct {
	client *redis.Client
}

// NewRedisSecretStore wraps a go-redis client.
func NewRedisSecretStore(client *redis.Client) *RedisSecretStore {
	return &RedisSecretStore{client: client}
}

func (s *RedisSecretStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, secretPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get secret %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisSecretStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, secretPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set secret %s: %w", key, err)
	}
	return nil
}
