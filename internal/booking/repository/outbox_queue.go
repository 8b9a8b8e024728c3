package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/fleetlink/internal/booking/domain"
)

// OutboxQueue implements domain.EventPublisher by appending events to the
// outbox table; the outbox worker dispatches them to NATS. Used instead of
// direct publishing when Postgres is wired, so events survive broker outages.
type OutboxQueue struct {
	db    *sql.DB
	topic string
}

// NewOutboxQueue constructs the queue for a topic.
func NewOutboxQueue(db *sql.DB, topic string) *OutboxQueue {
	return &OutboxQueue{db: db, topic: topic}
}

// Publish appends the event to the outbox.
func (q *OutboxQueue) Publish(ctx context.Context, event domain.BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, `INSERT INTO outbox (topic, payload, published) VALUES ($1, $2, false)`, q.topic, payload); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}
