package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/modelpark/asset-registry/pkg/registry"
)

// Publisher relays committed events to subscribers outside the registry.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// NATSPublisher publishes events to a NATS subject per event type,
// e.g. registry.events.asset_registered.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher creates a publisher over an established NATS connection.
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string) *NATSPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "registry.events"
	}
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}
}

func (p *NATSPublisher) Publish(_ context.Context, ev *Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, ev.Type)
	if err := p.conn.Publish(subject, body); err != nil {
		return registry.NewBusUnavailableError(fmt.Errorf("publish event %s to %s: %w", ev.ID, subject, err))
	}
	return nil
}
