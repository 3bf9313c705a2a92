// Package redis stores slot values in Redis with an expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ariya-Dice/tansoo/pkg/database"
)

// DefaultPrefix namespaces cart keys.
const DefaultPrefix = "cart:"

// Slot keeps values under prefix+key. Every Set refreshes the TTL, so an
// abandoned cart is evicted TTL after its last change.
type Slot struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New creates a Redis slot. A zero ttl stores keys without expiry.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Slot {
	return &Slot{client: client, prefix: prefix, ttl: ttl}
}

func (s *Slot) Get(ctx context.Context, key string) (value string, found bool, err error) {
	ctx, end := database.TraceOp(ctx, "redis", "SlotGet", "GET")
	defer func() { end(err) }()

	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes the value with a single SET, which Redis applies atomically.
func (s *Slot) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "SlotSet", "SET")
	defer func() { end(err) }()

	if err = s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Slot) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "SlotDelete", "DEL")
	defer func() { end(err) }()

	if err = s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Slot) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
