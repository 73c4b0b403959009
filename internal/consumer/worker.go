// Package consumer drains the event stream through a competing-consumers
// group, persists entries idempotently, and republishes live aggregates.
package consumer

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/domain"
	"floodgate.io/floodgate/internal/pkg/logger"
	"floodgate.io/floodgate/internal/stream"
)

// EventLog is the consumer-group view of the stream. Satisfied by *stream.Log.
type EventLog interface {
	ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]stream.Delivery, error)
	Ack(ctx context.Context, streamIDs ...string) error
}

// EventStore persists a batch idempotently. Satisfied by *repository.EventStore.
type EventStore interface {
	BulkInsert(ctx context.Context, events []*domain.Event) error
}

// Recorder accounts for one processed event. Satisfied by *stats.Aggregator.
type Recorder interface {
	Record(userID string)
}

// Publisher pushes live signals to subscribers. Satisfied by *hub.Hub.
type Publisher interface {
	Broadcast(event string, data interface{})
}

// Options configures a Worker.
type Options struct {
	// Consumer is this process's identity inside the group. Defaults to
	// worker-{hostname}-{pid}.
	Consumer   string
	ReadCount  int64
	BlockWait  time.Duration
	RetryPause time.Duration
}

// Worker runs one sequential drain loop. Many processes may run the same
// loop under the same group; the group delivers each entry to at most one
// of them, so no cross-process locking is needed. Throughput scales by
// running more processes, not by parallelizing within one.
type Worker struct {
	log   EventLog
	store EventStore
	agg   Recorder
	pub   Publisher
	opts  Options
}

// New creates a Worker.
func New(log EventLog, store EventStore, agg Recorder, pub Publisher, opts Options) *Worker {
	if opts.Consumer == "" {
		opts.Consumer = defaultConsumerName()
	}
	if opts.ReadCount <= 0 {
		opts.ReadCount = 100
	}
	if opts.BlockWait <= 0 {
		opts.BlockWait = time.Second
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = time.Second
	}
	return &Worker{log: log, store: store, agg: agg, pub: pub, opts: opts}
}

// Consumer returns this worker's consumer identity.
func (w *Worker) Consumer() string { return w.opts.Consumer }

// Run drives the drain loop until ctx is cancelled. Transient faults are
// logged, followed by a short pause; the loop never terminates on them.
func (w *Worker) Run(ctx context.Context) {
	logger.Info("Stream worker started",
		zap.String("consumer", w.opts.Consumer),
		zap.Int64("read_count", w.opts.ReadCount),
	)

	for {
		if ctx.Err() != nil {
			logger.Info("Stream worker stopped", zap.String("consumer", w.opts.Consumer))
			return
		}

		if err := w.processBatch(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("Worker loop error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.opts.RetryPause):
			}
		}
	}
}

// processBatch performs one read-persist-ack cycle. Entries are acked after
// the batch's persistence attempt completes, whatever its outcome: a failed
// insert is logged and the batch dropped rather than redelivered. This
// trades possible loss during a store outage for immunity to redelivery
// storms; a stricter deployment would ack only confirmed rows and leave the
// rest pending.
func (w *Worker) processBatch(ctx context.Context) error {
	deliveries, err := w.log.ReadGroup(ctx, w.opts.Consumer, w.opts.ReadCount, w.opts.BlockWait)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		return nil
	}

	streamIDs := make([]string, 0, len(deliveries))
	events := make([]*domain.Event, 0, len(deliveries))
	for _, d := range deliveries {
		streamIDs = append(streamIDs, d.StreamID)

		ev, err := domain.DecodeEvent(d.Payload)
		if err != nil {
			logger.Warn("Undecodable stream entry, skipping",
				zap.String("stream_id", d.StreamID),
				zap.Error(err),
			)
			continue
		}

		w.agg.Record(ev.UserID)
		w.pub.Broadcast("event:new", ev)
		events = append(events, ev)
	}

	if err := w.store.BulkInsert(ctx, events); err != nil {
		logger.Error("Persistence fault, batch dropped",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}

	return w.log.Ack(ctx, streamIDs...)
}

func defaultConsumerName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
}
