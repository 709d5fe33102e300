// Package events provides the broker side of event delivery: a NATS
// connection wrapper and the relay that drains the transactional outbox.
package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces every ledger event subject.
const SubjectPrefix = "ledger"

// NatsConfig holds the NATS connection settings.
type NatsConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Connect opens a NATS connection with reconnect handling.
func Connect(cfg NatsConfig) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// NatsPublisher publishes serialized events on per-type subjects, e.g.
// "ledger.settlement.completed".
type NatsPublisher struct {
	conn *nats.Conn
}

// NewNatsPublisher wraps an open connection.
func NewNatsPublisher(conn *nats.Conn) *NatsPublisher {
	return &NatsPublisher{conn: conn}
}

// Publish sends one payload under the subject for its event type.
func (p *NatsPublisher) Publish(eventType string, payload []byte) error {
	subject := SubjectPrefix + "." + eventType
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes and closes the connection.
func (p *NatsPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		return err
	}
	p.conn.Close()
	return nil
}
