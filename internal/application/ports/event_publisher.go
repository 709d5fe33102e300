package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// EventPublisher publishes domain events. The transactional outbox
// implementation stores events in the same store transaction as the
// operation; a relay drains the outbox to the broker afterwards, which gives
// at-least-once delivery. Consumers must be idempotent.
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, batch []events.DomainEvent) error
}

// OutboxMessage is one stored, not-yet-relayed event.
type OutboxMessage struct {
	ID          uuid.UUID
	EventType   string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
	Attempts    int
}

// OutboxStore persists events alongside the business operation and feeds the
// relay.
type OutboxStore interface {
	// Save serializes the event into the outbox table. Must run inside the
	// same store transaction as the operation that raised it.
	Save(ctx context.Context, event events.DomainEvent) error

	// FindUnpublished returns pending messages, oldest first.
	FindUnpublished(ctx context.Context, limit int) ([]OutboxMessage, error)

	// MarkPublished marks a message as delivered to the broker.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a delivery failure and bumps the attempt counter.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
