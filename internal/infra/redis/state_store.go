package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// StateStore keeps client state in one Redis hash so every console replica sees the same login.
// The hash expires ttl after the last write; a zero ttl keeps it until logout.
type StateStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, namespace string, ttl time.Duration) *StateStore {
	if namespace == "" {
		namespace = "default"
	}
	return &StateStore{
		client: client,
		key:    "console:state:" + namespace,
		ttl:    ttl,
	}
}

func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.key, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis state get")
	}
	return value, true, nil
}

func (s *StateStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis state set")
	}
	return nil
}

func (s *StateStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "redis state clear")
	}
	return nil
}
