package receiver

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSReader consumes measurement lines published on a NATS subject.
type NATSReader struct {
	conn *nats.Conn
	sub  *nats.Subscription
	rx   *Receiver
}

// SubscribeNATS connects to url and subscribes to subject.
func SubscribeNATS(url, subject string, rx *Receiver) (*NATSReader, error) {
	conn, err := nats.Connect(url,
		nats.Name("vitalwatch-ingest"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("receiver: nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("receiver: nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("receiver: nats connect %q: %w", url, err)
	}

	r := &NATSReader{conn: conn, rx: rx}
	sub, err := conn.Subscribe(subject, r.handleMsg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("receiver: nats subscribe %q: %w", subject, err)
	}
	r.sub = sub
	slog.Info("receiver: nats subscribed", "url", url, "subject", subject)
	return r, nil
}

func (r *NATSReader) handleMsg(msg *nats.Msg) {
	r.rx.HandleText(msg.Subject, string(msg.Data))
}

// Close drains the subscription and closes the connection.
func (r *NATSReader) Close() {
	if r.conn != nil {
		_ = r.conn.Drain()
		r.conn.Close()
	}
}
