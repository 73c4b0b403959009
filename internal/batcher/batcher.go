// Package batcher amortizes log-append cost by buffering accepted events and
// flushing them as one pipelined batch on a size-or-time trigger.
package batcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/pkg/logger"
	"floodgate.io/floodgate/internal/pkg/worker"
	"floodgate.io/floodgate/internal/stream"
)

// Appender receives a flushed batch. Satisfied by *stream.Log.
type Appender interface {
	AppendBatch(ctx context.Context, items []stream.Item) error
}

// Dispatcher runs the asynchronous flush off the caller's goroutine.
// Satisfied by *worker.Pool.
type Dispatcher interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Batcher buffers items and flushes whichever trigger fires first: the
// buffer reaching size, or interval elapsing since the first item entered an
// empty buffer. Each buffer generation is flushed exactly once — a
// size-triggered flush clears the pending timer, and a stale timer firing
// after a swap finds its generation gone and does nothing.
type Batcher struct {
	log      Appender
	dispatch Dispatcher
	size     int
	interval time.Duration

	mu    sync.Mutex
	buf   []stream.Item
	timer *time.Timer
	gen   uint64

	lifecycle context.Context
	cancel    context.CancelFunc
}

// New creates a Batcher. dispatch runs flushes asynchronously; size and
// interval are the dual triggers.
func New(log Appender, dispatch Dispatcher, size int, interval time.Duration) *Batcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		log:       log,
		dispatch:  dispatch,
		size:      size,
		interval:  interval,
		lifecycle: ctx,
		cancel:    cancel,
	}
}

// Add enqueues an item for eventual append. It returns as soon as the item
// is buffered; the append happens asynchronously on a trigger. Failed
// appends are logged and dropped, never surfaced to the caller — the caller
// has already been told "accepted".
func (b *Batcher) Add(id, payload string) {
	b.mu.Lock()
	b.buf = append(b.buf, stream.Item{ID: id, Payload: payload})

	if len(b.buf) >= b.size {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.flushAsync(batch)
		return
	}

	if b.timer == nil {
		b.scheduleLocked()
	}
	b.mu.Unlock()
}

// Close flushes any buffered remainder synchronously and stops the timer.
// Call during graceful shutdown, after ingress has stopped.
func (b *Batcher) Close() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()

	if len(batch) > 0 {
		b.append(context.Background(), batch)
	}
	b.cancel()
}

// takeLocked swaps out the current buffer, clears the pending timer, and
// bumps the generation so a racing timer callback becomes a no-op.
// Caller must hold b.mu.
func (b *Batcher) takeLocked() []stream.Item {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.buf
	b.buf = nil
	b.gen++
	return batch
}

// scheduleLocked arms the time trigger for the current buffer generation.
// Caller must hold b.mu.
func (b *Batcher) scheduleLocked() {
	gen := b.gen
	b.timer = time.AfterFunc(b.interval, func() {
		b.flushGeneration(gen)
	})
}

// flushGeneration is the time-trigger path. It flushes only if the buffer
// generation it was armed for is still current.
func (b *Batcher) flushGeneration(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flushAsync(batch)
}

func (b *Batcher) flushAsync(batch []stream.Item) {
	if len(batch) == 0 {
		return
	}
	err := b.dispatch.Submit(b.lifecycle, func(ctx context.Context) {
		b.append(ctx, batch)
	})
	if err != nil {
		// Pool saturated or shutting down; flush on the caller instead of
		// dropping a batch that was never attempted.
		b.append(b.lifecycle, batch)
	}
}

func (b *Batcher) append(ctx context.Context, batch []stream.Item) {
	if err := b.log.AppendBatch(ctx, batch); err != nil {
		logger.Error("Batch append failed, dropping batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
	}
}
