// Package stats maintains the process-local live aggregate and pushes a
// snapshot to subscribers once per tick.
package stats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/pkg/logger"
)

// Snapshot is the point-in-time aggregate served to the dashboard.
type Snapshot struct {
	TotalEvents int64   `json:"totalEvents"`
	ActiveUsers int     `json:"activeUsers"`
	Throughput  float64 `json:"throughput"`
	RateLimited int64   `json:"rateLimited"`
}

// Point is one throughput sample on the dashboard's time series.
type Point struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Publisher pushes a named envelope to subscribers. Satisfied by *hub.Hub.
type Publisher interface {
	Broadcast(event string, data interface{})
}

// RejectionDrainer drains the accumulated 429 count since the last tick.
// Satisfied by *ratelimit.RejectionCounter.
type RejectionDrainer interface {
	Drain(ctx context.Context) (int64, error)
}

// Aggregator owns the live counters. The stream worker's single loop is the
// only writer on the ingestion path; the tick loop and the stats endpoint
// read concurrently, so every read goes through a snapshot under the mutex.
//
// totalEvents is seeded from the store's row count at startup. activeUsers
// is NOT rehydrated at restart: it starts empty and only fills as the worker
// sees traffic.
type Aggregator struct {
	tick        time.Duration
	historySize int

	mu            sync.Mutex
	totalEvents   int64
	activeUsers   map[string]struct{}
	intervalCount int64
	rateLimited   int64
	throughput    float64
	history       []Point
}

// NewAggregator creates an Aggregator with the given tick interval and
// history ring size.
func NewAggregator(tick time.Duration, historySize int) *Aggregator {
	return &Aggregator{
		tick:        tick,
		historySize: historySize,
		activeUsers: make(map[string]struct{}),
	}
}

// Seed initializes the monotonic total from the store's row count.
func (a *Aggregator) Seed(total int64) {
	a.mu.Lock()
	a.totalEvents = total
	a.mu.Unlock()
}

// Record accounts for one processed event.
func (a *Aggregator) Record(userID string) {
	a.mu.Lock()
	a.totalEvents++
	a.activeUsers[userID] = struct{}{}
	a.intervalCount++
	a.mu.Unlock()
}

// Snapshot returns the current aggregate. Eventual consistency: the snapshot
// may be taken at an arbitrary point between ticks.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// History returns a copy of the throughput time series, oldest first.
func (a *Aggregator) History() []Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Point, len(a.history))
	copy(out, a.history)
	return out
}

// Run drives the tick loop until ctx is cancelled: recompute throughput,
// drain the rejection side channel, record a history point, and push the
// snapshot to subscribers.
func (a *Aggregator) Run(ctx context.Context, pub Publisher, rejections RejectionDrainer) {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.advance(ctx, now, pub, rejections)
		}
	}
}

func (a *Aggregator) advance(ctx context.Context, now time.Time, pub Publisher, rejections RejectionDrainer) {
	var rejected int64
	if rejections != nil {
		n, err := rejections.Drain(ctx)
		if err != nil {
			logger.Warn("Rejection counter drain failed", zap.Error(err))
		} else {
			rejected = n
		}
	}

	a.mu.Lock()
	a.throughput = float64(a.intervalCount) / a.tick.Seconds()
	a.intervalCount = 0
	a.rateLimited += rejected

	point := Point{Time: now.Format("15:04:05"), Value: a.throughput}
	a.history = append(a.history, point)
	if len(a.history) > a.historySize {
		a.history = a.history[len(a.history)-a.historySize:]
	}
	snap := a.snapshotLocked()
	a.mu.Unlock()

	if pub != nil {
		pub.Broadcast("stats:update", map[string]interface{}{
			"current": snap,
			"point":   point,
		})
	}
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{
		TotalEvents: a.totalEvents,
		ActiveUsers: len(a.activeUsers),
		Throughput:  a.throughput,
		RateLimited: a.rateLimited,
	}
}
