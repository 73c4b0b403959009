// Package handlers implements the Floodgate HTTP API: the ingress endpoint,
// the stats endpoint, and the WebSocket subscription upgrade.
package handlers

import (
	"context"
	"time"

	"floodgate.io/floodgate/internal/hub"
	"floodgate.io/floodgate/internal/pkg/worker"
	"floodgate.io/floodgate/internal/repository"
	"floodgate.io/floodgate/internal/stats"
)

// Admitter decides admission for a source identity. Satisfied by
// *ratelimit.Limiter.
type Admitter interface {
	Admit(ctx context.Context, userID string, now time.Time, markerID string) (bool, error)
}

// Enqueuer buffers an accepted event for the log. Satisfied by *batcher.Batcher.
type Enqueuer interface {
	Add(id, payload string)
}

// RejectionRecorder records a 429 outcome on the side channel. Satisfied by
// *ratelimit.RejectionCounter.
type RejectionRecorder interface {
	Incr(ctx context.Context) error
}

// StatsReader serves the live aggregate. Satisfied by *stats.Aggregator.
type StatsReader interface {
	Snapshot() stats.Snapshot
	History() []stats.Point
}

// RecentReader serves recently persisted rows. Satisfied by
// *repository.EventStore.
type RecentReader interface {
	RecentEvents(ctx context.Context, limit int) ([]repository.PersistedEvent, error)
}

// Server implements all API handlers.
type Server struct {
	limiter     Admitter
	queue       Enqueuer
	rejections  RejectionRecorder
	stats       StatsReader
	store       RecentReader
	hub         *hub.Hub
	pools       *worker.Pools
	recentLimit int
}

// ServerDeps holds all dependencies for creating a Server. Manual DI.
type ServerDeps struct {
	Limiter     Admitter
	Queue       Enqueuer
	Rejections  RejectionRecorder
	Stats       StatsReader
	Store       RecentReader
	Hub         *hub.Hub
	Pools       *worker.Pools
	RecentLimit int
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	recentLimit := deps.RecentLimit
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Server{
		limiter:     deps.Limiter,
		queue:       deps.Queue,
		rejections:  deps.Rejections,
		stats:       deps.Stats,
		store:       deps.Store,
		hub:         deps.Hub,
		pools:       deps.Pools,
		recentLimit: recentLimit,
	}
}
