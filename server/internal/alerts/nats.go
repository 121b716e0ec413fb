package alerts

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// publisher is the subset of *nats.Conn used by NATSPublisher.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes every alert as JSON on a NATS subject.
type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn // nil when constructed around a non-NATS publisher
	subject string
}

// NewNATSPublisher connects to url and publishes to subject.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("vitalwatch-alerts"))
	if err != nil {
		return nil, fmt.Errorf("alerts: nats connect %q: %w", url, err)
	}
	return &NATSPublisher{conn: nc, nc: nc, subject: subject}, nil
}

// Sink returns a Sink that publishes each alert. nats.Conn.Publish buffers
// and returns without waiting on the server.
func (p *NATSPublisher) Sink() Sink {
	return func(a Alert) {
		if err := p.Publish(a); err != nil {
			slog.Error("alerts: nats publish failed", "subject", p.subject, "id", a.ID, "err", err)
		}
	}
}

// Publish marshals a and publishes it on the configured subject.
func (p *NATSPublisher) Publish(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.conn.Publish(p.subject, data)
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}
