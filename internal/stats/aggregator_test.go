package stats

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodgate.io/floodgate/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (p *capturingPublisher) Broadcast(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.data = append(p.data, data)
}

type staticDrainer struct{ n int64 }

func (d staticDrainer) Drain(context.Context) (int64, error) { return d.n, nil }

func TestRecord_AccumulatesCounters(t *testing.T) {
	a := NewAggregator(time.Second, 60)
	a.Seed(100)

	a.Record("u1")
	a.Record("u1")
	a.Record("u2")

	snap := a.Snapshot()
	assert.Equal(t, int64(103), snap.TotalEvents)
	assert.Equal(t, 2, snap.ActiveUsers)
	assert.Equal(t, float64(0), snap.Throughput, "throughput recomputes only on tick")
}

func TestAdvance_ComputesThroughputAndResetsInterval(t *testing.T) {
	a := NewAggregator(time.Second, 60)
	pub := &capturingPublisher{}

	for i := 0; i < 5; i++ {
		a.Record("u1")
	}
	a.advance(context.Background(), time.Now(), pub, staticDrainer{})

	snap := a.Snapshot()
	assert.Equal(t, float64(5), snap.Throughput)

	// Interval counter was reset: the next tick sees zero.
	a.advance(context.Background(), time.Now(), pub, staticDrainer{})
	assert.Equal(t, float64(0), a.Snapshot().Throughput)

	require.Len(t, pub.events, 2)
	assert.Equal(t, "stats:update", pub.events[0])
}

func TestAdvance_DrainsRejections(t *testing.T) {
	a := NewAggregator(time.Second, 60)

	a.advance(context.Background(), time.Now(), nil, staticDrainer{n: 7})
	a.advance(context.Background(), time.Now(), nil, staticDrainer{n: 3})

	assert.Equal(t, int64(10), a.Snapshot().RateLimited)
}

func TestAdvance_HistoryRingIsBounded(t *testing.T) {
	a := NewAggregator(time.Second, 3)

	for i := 0; i < 5; i++ {
		a.Record("u1")
		a.advance(context.Background(), time.Now(), nil, staticDrainer{})
	}

	history := a.History()
	require.Len(t, history, 3, "ring keeps only the newest points")
	assert.Equal(t, float64(1), history[2].Value)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := NewAggregator(10*time.Millisecond, 60)
	pub := &capturingPublisher{}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx, pub, staticDrainer{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	pub.mu.Lock()
	ticks := len(pub.events)
	pub.mu.Unlock()
	assert.Greater(t, ticks, 0, "at least one tick published")
}
