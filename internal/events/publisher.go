package events

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/ernie/trinity-link/internal/domain"
)

// Publisher publishes link lifecycle events to NATS on
// <prefix>.<event type>, e.g. trinitylink.link_created.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url and returns a publisher. The connection reconnects
// forever and buffers publishes while disconnected.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("trinity-link"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Publisher{nc: nc, prefix: prefix}, nil
}

// Conn returns the underlying connection
func (p *Publisher) Conn() *nats.Conn {
	return p.nc
}

// Subject returns the subject an event type is published on
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish sends event as JSON
func (p *Publisher) Publish(event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Printf("Error draining NATS connection: %v", err)
		p.nc.Close()
	}
}
