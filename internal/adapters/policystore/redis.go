package policystore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikey/image-mod-relay/internal/policy"
	"github.com/redis/go-redis/v9"
)

const redisPolicyKey = "image-mod-relay/policy"

// RedisStore keeps the policy state as one JSON value
type RedisStore struct {
	Client *redis.Client
	Key    string
}

var _ policy.Persister = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and checks the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{
		Client: rdb,
		Key:    redisPolicyKey,
	}, nil
}

func (s *RedisStore) Load(ctx context.Context) (*policy.State, error) {
	val, err := s.Client.Get(ctx, s.Key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy state: %w", err)
	}
	var state policy.State
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to decode policy state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, state *policy.State) error {
	val, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode policy state: %w", err)
	}
	if err := s.Client.Set(ctx, s.Key, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to write policy state: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
