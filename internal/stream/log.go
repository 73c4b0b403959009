// Package stream wraps the Redis Stream that decouples admission from
// persistence: capped appends on the ingress side, consumer-group reads and
// acknowledgments on the worker side.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Item is the wire shape of one log entry: the event id plus the serialized
// event payload.
type Item struct {
	ID      string
	Payload string
}

// Delivery is one entry handed to a consumer, carrying the stream-assigned
// identifier needed for acknowledgment.
type Delivery struct {
	StreamID string
	EventID  string
	Payload  string
}

// Log is a capped, consumer-group-backed event log over a Redis Stream.
type Log struct {
	client *redis.Client
	name   string
	group  string
	maxLen int64
}

// NewLog creates a Log bound to the named stream and consumer group.
func NewLog(client *redis.Client, name, group string, maxLen int64) *Log {
	return &Log{client: client, name: name, group: group, maxLen: maxLen}
}

// Name returns the stream key.
func (l *Log) Name() string { return l.name }

// Group returns the consumer group name.
func (l *Log) Group() string { return l.group }

// AppendBatch appends all items as one pipelined batch of XADDs. The stream
// is trimmed approximately to maxLen so sustained admission cannot grow it
// without bound. Append order within the batch matches item order.
func (l *Log) AppendBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	pipe := l.client.Pipeline()
	for _, item := range items {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: l.name,
			MaxLen: l.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"id":      item.ID,
				"payload": item.Payload,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append %d entries to %s: %w", len(items), l.name, err)
	}
	return nil
}

// EnsureGroup creates the consumer group (and the stream itself, if missing)
// starting from the beginning of the log. Safe to call on every startup: an
// already-existing group is not an error.
func (l *Log) EnsureGroup(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.name, l.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", l.group, l.name, err)
	}
	return nil
}

// ReadGroup block-reads up to count unclaimed entries for the named consumer.
// A bounded wait keeps the caller responsive to shutdown; when no entries
// arrive within block, it returns an empty slice and no error.
func (l *Log) ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]Delivery, error) {
	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: consumer,
		Streams:  []string{l.name, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read group %s: %w", l.group, err)
	}

	var deliveries []Delivery
	for _, str := range res {
		for _, msg := range str.Messages {
			d := Delivery{StreamID: msg.ID}
			if v, ok := msg.Values["id"].(string); ok {
				d.EventID = v
			}
			if v, ok := msg.Values["payload"].(string); ok {
				d.Payload = v
			}
			deliveries = append(deliveries, d)
		}
	}
	return deliveries, nil
}

// Ack acknowledges processed entries to the group.
func (l *Log) Ack(ctx context.Context, streamIDs ...string) error {
	if len(streamIDs) == 0 {
		return nil
	}
	if err := l.client.XAck(ctx, l.name, l.group, streamIDs...).Err(); err != nil {
		return fmt.Errorf("ack %d entries: %w", len(streamIDs), err)
	}
	return nil
}
