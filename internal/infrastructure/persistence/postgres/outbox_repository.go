package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

var (
	_ ports.OutboxStore    = (*OutboxRepository)(nil)
	_ ports.EventPublisher = (*OutboxRepository)(nil)
)

// OutboxRepository is the transactional outbox. Publishing an event stores it
// in the same transaction as the operation that raised it; the relay drains
// the table to the broker afterwards. At-least-once delivery, so consumers
// must be idempotent.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates the repository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Save serializes the event into the outbox table.
func (r *OutboxRepository) Save(ctx context.Context, event events.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
	}
	q := queryEngine(ctx, r.pool)
	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.EventID(), event.EventType(), event.AggregateID(), payload, event.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// Publish implements EventPublisher by storing the event.
func (r *OutboxRepository) Publish(ctx context.Context, event events.DomainEvent) error {
	return r.Save(ctx, event)
}

// PublishBatch stores a batch of events.
func (r *OutboxRepository) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := r.Save(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// FindUnpublished returns pending messages, oldest first. Rows are locked
// with SKIP LOCKED so concurrent relay instances never double-deliver within
// one drain cycle.
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT id, event_type, aggregate_id, payload, occurred_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY occurred_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	var messages []ports.OutboxMessage
	for rows.Next() {
		var m ports.OutboxMessage
		if err := rows.Scan(&m.ID, &m.EventType, &m.AggregateID, &m.Payload, &m.OccurredAt, &m.Attempts); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkPublished stamps the delivery time.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE outbox_events SET published_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and records the reason.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}
