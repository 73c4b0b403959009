package consumer

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodgate.io/floodgate/internal/domain"
	"floodgate.io/floodgate/internal/pkg/logger"
	"floodgate.io/floodgate/internal/stream"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// scriptedLog serves pre-canned deliveries one batch per read.
type scriptedLog struct {
	mu      sync.Mutex
	batches [][]stream.Delivery
	readErr error
	acked   [][]string
	ackErr  error
}

func (l *scriptedLog) ReadGroup(ctx context.Context, _ string, _ int64, _ time.Duration) ([]stream.Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		err := l.readErr
		l.readErr = nil
		return nil, err
	}
	if len(l.batches) == 0 {
		return nil, ctx.Err()
	}
	batch := l.batches[0]
	l.batches = l.batches[1:]
	return batch, nil
}

func (l *scriptedLog) Ack(_ context.Context, streamIDs ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acked = append(l.acked, streamIDs)
	return l.ackErr
}

func (l *scriptedLog) ackedBatches() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.acked...)
}

type capturingStore struct {
	mu      sync.Mutex
	batches [][]*domain.Event
	err     error
}

func (s *capturingStore) BulkInsert(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
	return s.err
}

type capturingRecorder struct {
	mu    sync.Mutex
	users []string
}

func (r *capturingRecorder) Record(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturingPublisher) Broadcast(event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func delivery(streamID, eventID, userID string) stream.Delivery {
	ev := &domain.Event{
		EventID: eventID, UserID: userID, Type: "click",
		Metadata: map[string]interface{}{}, Timestamp: time.Now().UTC(),
	}
	payload, _ := ev.Encode()
	return stream.Delivery{StreamID: streamID, EventID: eventID, Payload: payload}
}

func TestProcessBatch_PersistsThenAcks(t *testing.T) {
	log := &scriptedLog{batches: [][]stream.Delivery{{
		delivery("1-0", "e1", "u1"),
		delivery("2-0", "e2", "u2"),
	}}}
	store := &capturingStore{}
	rec := &capturingRecorder{}
	pub := &capturingPublisher{}

	w := New(log, store, rec, pub, Options{Consumer: "test-worker"})
	require.NoError(t, w.processBatch(context.Background()))

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 2)
	assert.Equal(t, "e1", store.batches[0][0].EventID)

	acked := log.ackedBatches()
	require.Len(t, acked, 1)
	assert.Equal(t, []string{"1-0", "2-0"}, acked[0])

	assert.Equal(t, []string{"u1", "u2"}, rec.users)
	assert.Equal(t, []string{"event:new", "event:new"}, pub.events)
}

func TestProcessBatch_EmptyReadIsNoop(t *testing.T) {
	log := &scriptedLog{}
	store := &capturingStore{}

	w := New(log, store, &capturingRecorder{}, &capturingPublisher{}, Options{Consumer: "test-worker"})
	require.NoError(t, w.processBatch(context.Background()))

	assert.Empty(t, store.batches)
	assert.Empty(t, log.ackedBatches())
}

func TestProcessBatch_AcksEvenWhenPersistenceFails(t *testing.T) {
	log := &scriptedLog{batches: [][]stream.Delivery{{delivery("1-0", "e1", "u1")}}}
	store := &capturingStore{err: errors.New("store down")}

	w := New(log, store, &capturingRecorder{}, &capturingPublisher{}, Options{Consumer: "test-worker"})
	require.NoError(t, w.processBatch(context.Background()))

	acked := log.ackedBatches()
	require.Len(t, acked, 1, "persistence faults are logged, not retried; entries still ack")
	assert.Equal(t, []string{"1-0"}, acked[0])
}

func TestProcessBatch_SkipsUndecodableEntriesButAcksThem(t *testing.T) {
	log := &scriptedLog{batches: [][]stream.Delivery{{
		{StreamID: "1-0", EventID: "e1", Payload: "{broken"},
		delivery("2-0", "e2", "u2"),
	}}}
	store := &capturingStore{}
	rec := &capturingRecorder{}

	w := New(log, store, rec, &capturingPublisher{}, Options{Consumer: "test-worker"})
	require.NoError(t, w.processBatch(context.Background()))

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 1, "only the decodable entry persists")

	acked := log.ackedBatches()
	require.Len(t, acked, 1)
	assert.Equal(t, []string{"1-0", "2-0"}, acked[0], "bad entries are acked, not left pending")
	assert.Equal(t, []string{"u2"}, rec.users)
}

func TestRun_ResumesAfterTransientFaultAndStopsOnCancel(t *testing.T) {
	log := &scriptedLog{
		readErr: errors.New("transient"),
		batches: [][]stream.Delivery{{delivery("1-0", "e1", "u1")}},
	}
	store := &capturingStore{}

	w := New(log, store, &capturingRecorder{}, &capturingPublisher{}, Options{
		Consumer:   "test-worker",
		RetryPause: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(log.ackedBatches()) == 1
	}, time.Second, 5*time.Millisecond, "loop resumed after the transient read error")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(&scriptedLog{}, &capturingStore{}, &capturingRecorder{}, &capturingPublisher{}, Options{})
	assert.NotEmpty(t, w.Consumer())
	assert.Equal(t, int64(100), w.opts.ReadCount)
	assert.Equal(t, time.Second, w.opts.BlockWait)
}
