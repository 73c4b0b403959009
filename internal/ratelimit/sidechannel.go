package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// rejectedKey accumulates 429 outcomes across all gateway instances until
// the aggregator drains it on its next tick.
const rejectedKey = "stats:rate_limited"

// RejectionCounter is the side channel wiring the gateway's 429 outcomes
// into the live aggregate.
type RejectionCounter struct {
	client *redis.Client
}

// NewRejectionCounter creates a RejectionCounter.
func NewRejectionCounter(client *redis.Client) *RejectionCounter {
	return &RejectionCounter{client: client}
}

// Incr records one rejection. Best-effort: callers fire-and-forget.
func (c *RejectionCounter) Incr(ctx context.Context) error {
	if err := c.client.Incr(ctx, rejectedKey).Err(); err != nil {
		return fmt.Errorf("incr rejected counter: %w", err)
	}
	return nil
}

// Drain atomically reads and resets the accumulated rejection count.
func (c *RejectionCounter) Drain(ctx context.Context) (int64, error) {
	n, err := c.client.GetDel(ctx, rejectedKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("drain rejected counter: %w", err)
	}
	return n, nil
}
