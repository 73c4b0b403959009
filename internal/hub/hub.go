// Package hub fans live signals out to WebSocket subscribers.
//
// Broadcast never blocks the pipeline: each subscriber has a bounded send
// buffer and a dedicated write pump; a subscriber that cannot keep up is
// dropped.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/pkg/logger"
	"floodgate.io/floodgate/internal/pkg/worker"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Message is the wire envelope pushed to subscribers.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// subscriber is one connected WebSocket client.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks subscribers and broadcasts envelopes to all of them.
type Hub struct {
	pools *worker.Pools

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// New creates a Hub. Write pumps run on the pools' broadcast pool.
func New(pools *worker.Pools) *Hub {
	return &Hub{
		pools: pools,
		subs:  make(map[*subscriber]struct{}),
	}
}

// Handle registers the connection and blocks until the client disconnects
// or the hub closes. Call from the upgrading HTTP handler.
func (h *Hub) Handle(conn *websocket.Conn) {
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	logger.Debug("Subscriber connected", zap.Int("subscribers", count))

	if err := h.pools.SubmitDetached("broadcast", func(ctx context.Context) {
		sub.writePump(ctx)
	}); err != nil {
		logger.Warn("Write pump submission failed, dropping subscriber", zap.Error(err))
		h.drop(sub)
		return
	}

	// Read loop: we expect no client messages, but reading is how we learn
	// about disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(sub)
}

// Broadcast pushes one envelope to every subscriber. Slow subscribers whose
// buffers are full are dropped rather than back-pressuring the pipeline.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		logger.Error("Broadcast marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		logger.Warn("Dropping slow subscriber")
		h.drop(sub)
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.send)
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	if ok {
		close(sub.send)
	}
}

// writePump drains the subscriber's send buffer onto the connection.
// Exits when the buffer channel closes (drop/Close) or a write fails.
func (s *subscriber) writePump(ctx context.Context) {
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
