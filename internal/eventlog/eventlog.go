// Package eventlog keeps an append-only audit trail of catalog, loan and
// membership changes. Entries are written alongside the state change; the
// trail is never replayed to rebuild state.
package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one recorded change.
type Entry struct {
	ID            int64               `json:"id" db:"id"`
	AggregateID   string              `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string              `json:"aggregate_type" db:"aggregate_type"`
	EventType     string              `json:"event_type" db:"event_type"`
	EventData     jsoniter.RawMessage `json:"event_data" db:"event_data"`
	Actor         string              `json:"actor,omitempty" db:"actor"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
}

// NewEntry marshals payload into an Entry for the given aggregate.
func NewEntry(aggregateType string, aggregateID any, eventType string, payload any) (Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Entry{
		AggregateID:   fmt.Sprint(aggregateID),
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     data,
	}, nil
}

// WithActor returns a copy of e attributed to the given user.
func (e Entry) WithActor(userID uuid.UUID) Entry {
	e.Actor = userID.String()
	return e
}

// Recorder appends entries to the trail.
type Recorder interface {
	Append(ctx context.Context, entries ...Entry) error
}

// Log is the Postgres-backed trail.
type Log struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewLog creates a Log writing to the events table.
func NewLog(db *sqlx.DB) *Log {
	return &Log{
		db:     db,
		tracer: otel.Tracer("libracatalog/eventlog"),
	}
}

// Append inserts entries in a single transaction.
func (l *Log) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, span := l.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.type", entries[0].AggregateType),
			attribute.String("aggregate.id", entries[0].AggregateID),
			attribute.Int("event.count", len(entries)),
		),
	)
	defer span.End()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, actor, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		var id int64
		err := stmt.QueryRowxContext(ctx,
			entry.AggregateID,
			entry.AggregateType,
			entry.EventType,
			string(entry.EventData),
			entry.Actor,
			time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", id),
			attribute.String("event.type", entry.EventType),
		))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load returns the trail of one aggregate, oldest first.
func (l *Log) Load(ctx context.Context, aggregateType, aggregateID string) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.load",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.String("aggregate.id", aggregateID),
		),
	)
	defer span.End()

	var entries []Entry
	err := l.db.SelectContext(ctx, &entries, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, COALESCE(actor, '') AS actor, created_at
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY id ASC
	`, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(entries)))
	return entries, nil
}

// Stream returns up to batchSize entries with an id greater than fromID.
func (l *Log) Stream(ctx context.Context, fromID int64, batchSize int) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	var entries []Entry
	err := l.db.SelectContext(ctx, &entries, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, COALESCE(actor, '') AS actor, created_at
		FROM events
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, fromID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("query event stream: %w", err)
	}

	span.SetAttributes(attribute.Int("events.streamed", len(entries)))
	return entries, nil
}

// Memory is an in-process trail used with the in-memory catalog store.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		e.ID = int64(len(m.entries) + 1)
		e.CreatedAt = time.Now().UTC()
		m.entries = append(m.entries, e)
	}
	return nil
}

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
