package events

import (
	"context"
	"log/slog"

	"github.com/fintrellis/ledgercore/internal/application/ports"
)

// BrokerPublisher is the broker-facing side of the relay.
type BrokerPublisher interface {
	Publish(eventType string, payload []byte) error
}

// Relay drains the transactional outbox to the broker. Each drain cycle runs
// in one store transaction so SKIP LOCKED keeps concurrent relay instances
// off each other's rows.
type Relay struct {
	outbox    ports.OutboxStore
	uow       ports.UnitOfWork
	publisher BrokerPublisher
	log       *slog.Logger
}

// NewRelay creates the relay.
func NewRelay(outbox ports.OutboxStore, uow ports.UnitOfWork, publisher BrokerPublisher, log *slog.Logger) *Relay {
	return &Relay{outbox: outbox, uow: uow, publisher: publisher, log: log}
}

// Drain publishes up to batchSize pending events and returns how many were
// delivered. A failed publish bumps the attempt counter and leaves the row
// pending; delivery is at-least-once.
func (r *Relay) Drain(ctx context.Context, batchSize int) (int, error) {
	published := 0
	err := r.uow.Execute(ctx, func(txCtx context.Context) error {
		messages, err := r.outbox.FindUnpublished(txCtx, batchSize)
		if err != nil {
			return err
		}
		for _, m := range messages {
			if err := r.publisher.Publish(m.EventType, m.Payload); err != nil {
				r.log.Warn("outbox publish failed",
					slog.String("event_id", m.ID.String()),
					slog.String("event_type", m.EventType),
					slog.Int("attempts", m.Attempts+1),
					slog.String("error", err.Error()))
				if markErr := r.outbox.MarkFailed(txCtx, m.ID, err.Error()); markErr != nil {
					return markErr
				}
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, m.ID); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}
