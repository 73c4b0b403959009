// Package repository provides the PostgreSQL event store.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"floodgate.io/floodgate/internal/domain"
)

// PersistedEvent is one durable row, keyed by the event id. Never mutated
// after insert.
type PersistedEvent struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventStore persists events idempotently and serves read queries for the
// stats endpoint.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the shared pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// InitSchema creates the events table and its indexes if missing.
func (s *EventStore) InitSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(100) NOT NULL,
			payload JSONB DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_events_user_id ON events(user_id);
		CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("init events schema: %w", err)
	}
	return nil
}

// BulkInsert inserts the whole batch in one statement. Rows whose id already
// exists are silently skipped (ON CONFLICT DO NOTHING), so redelivered
// entries never error and never duplicate. Empty batch is a no-op. Success
// or failure is reported for the batch as a unit.
func (s *EventStore) BulkInsert(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*4)
	for i, ev := range events {
		offset := i * 4
		placeholders = append(placeholders,
			fmt.Sprintf("($%d, $%d, $%d, $%d)", offset+1, offset+2, offset+3, offset+4))

		payload, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", ev.EventID, err)
		}
		args = append(args, ev.EventID, ev.UserID, ev.Type, payload)
	}

	query := fmt.Sprintf(`
		INSERT INTO events (id, user_id, event_type, payload)
		VALUES %s
		ON CONFLICT (id) DO NOTHING`,
		strings.Join(placeholders, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk insert %d events: %w", len(events), err)
	}
	return nil
}

// CountEvents returns the total number of persisted rows. Used to seed the
// live aggregate at startup.
func (s *EventStore) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// RecentEvents returns the most recently persisted rows, newest first.
func (s *EventStore) RecentEvents(ctx context.Context, limit int) ([]PersistedEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, event_type, payload, created_at
		FROM events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []PersistedEvent
	for rows.Next() {
		var ev PersistedEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}
