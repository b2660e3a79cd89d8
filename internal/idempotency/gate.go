// Package idempotency implements the dedup gate that turns the broker's
// at-least-once delivery into exactly-once effects, plus the attempt counter
// backing the redelivery cap.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate admits exactly one caller per key. Admission must be atomic across
// concurrent callers: two near-simultaneous duplicate deliveries for the
// same event id must result in exactly one admitted execution.
type Gate interface {
	// Admit returns true if this call set the key, false if it was
	// already present.
	Admit(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release clears an admitted key so a redelivery can be admitted
	// again. Called when the handler fails after admission; otherwise the
	// broker's redelivery would be swallowed as a duplicate and the
	// event's effect lost.
	Release(ctx context.Context, key string) error
}

// Counter increments a bounded-lifetime counter, used to budget broker
// redeliveries per message.
type Counter struct {
	client *redis.Client
}

type redisGate struct {
	client *redis.Client
}

// NewRedisGate builds a Gate on Redis SETNX, which is atomic server-side.
func NewRedisGate(client *redis.Client) Gate {
	return &redisGate{client: client}
}

func (g *redisGate) Admit(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	admitted, err := g.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to test-and-set dedup key %s: %w", key, err)
	}
	return admitted, nil
}

func (g *redisGate) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key %s: %w", key, err)
	}
	return nil
}

func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// Increment bumps the counter at key and returns the new value. The TTL is
// applied on first increment so abandoned counters expire.
func (c *Counter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}
