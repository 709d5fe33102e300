// Package testutil provides in-memory implementations of the persistence and
// runtime ports. They enforce the same uniqueness rules as the PostgreSQL
// schema so use case tests exercise the real conflict paths.
package testutil

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// FixedClock returns a pinned instant until advanced.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock pins the clock to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// SequentialIDs hands out deterministic uuids: 00000000-...-0001, -0002, ...
type SequentialIDs struct {
	mu   sync.Mutex
	next uint64
}

func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

func (g *SequentialIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], g.next)
	return id
}

// PassthroughUoW runs the function directly; there is nothing to roll back in
// memory, so tests assert on the stores' final state.
type PassthroughUoW struct{}

func (PassthroughUoW) Execute(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// MemoryOutbox implements both OutboxStore and EventPublisher, recording
// every event for assertions.
type MemoryOutbox struct {
	mu     sync.Mutex
	Events []events.DomainEvent
	marked map[uuid.UUID]bool
	failed map[uuid.UUID]string
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{marked: map[uuid.UUID]bool{}, failed: map[uuid.UUID]string{}}
}

func (o *MemoryOutbox) Publish(_ context.Context, event events.DomainEvent) error {
	return o.Save(context.Background(), event)
}

func (o *MemoryOutbox) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, e := range batch {
		if err := o.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (o *MemoryOutbox) Save(_ context.Context, event events.DomainEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Events = append(o.Events, event)
	return nil
}

func (o *MemoryOutbox) FindUnpublished(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []ports.OutboxMessage
	for _, e := range o.Events {
		if o.marked[e.EventID()] {
			continue
		}
		out = append(out, ports.OutboxMessage{
			ID:          e.EventID(),
			EventType:   e.EventType(),
			AggregateID: e.AggregateID(),
			OccurredAt:  e.OccurredAt(),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.marked[id] = true
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[id] = reason
	return nil
}

// EventsOfType returns the recorded events with the given type.
func (o *MemoryOutbox) EventsOfType(eventType string) []events.DomainEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []events.DomainEvent
	for _, e := range o.Events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MemoryBalanceCache records sets and invalidations.
type MemoryBalanceCache struct {
	mu          sync.Mutex
	balances    map[int64]*entities.Balance
	Invalidated []int64
}

func NewMemoryBalanceCache() *MemoryBalanceCache {
	return &MemoryBalanceCache{balances: map[int64]*entities.Balance{}}
}

func (c *MemoryBalanceCache) Get(_ context.Context, walletID int64) (*entities.Balance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[walletID]
	return b, ok, nil
}

func (c *MemoryBalanceCache) Set(_ context.Context, balance *entities.Balance, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[balance.WalletID] = balance
	return nil
}

func (c *MemoryBalanceCache) Invalidate(_ context.Context, walletIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range walletIDs {
		delete(c.balances, id)
		c.Invalidated = append(c.Invalidated, id)
	}
	return nil
}
