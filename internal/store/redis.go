package store

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis stores records as plain string values.
type Redis struct {
	Client *redis.Client
	Prefix string
	// TTL expires records when positive; zero keeps them forever.
	TTL time.Duration
}

func (s Redis) key(key string) string {
	return s.Prefix + key
}

// Get implements Store.
func (s Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if s.Client == nil {
		return nil, errors.New("store: redis client not configured")
	}
	v, err := s.Client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Put implements Store.
func (s Redis) Put(ctx context.Context, key string, value []byte) error {
	if s.Client == nil {
		return errors.New("store: redis client not configured")
	}
	return s.Client.Set(ctx, s.key(key), value, s.TTL).Err()
}

// Ping implements Store.
func (s Redis) Ping(ctx context.Context) error {
	if s.Client == nil {
		return errors.New("store: redis client not configured")
	}
	return s.Client.Ping(ctx).Err()
}
