package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const wsHandshakeTimeout = 10 * time.Second

// WebSocketReader streams measurement lines from a WebSocket server. Each text
// message may hold one or more lines.
type WebSocketReader struct {
	url     string
	rx      *Receiver
	dialer  *websocket.Dialer
	initial time.Duration // first reconnect delay
}

// NewWebSocketReader returns a reader for url.
func NewWebSocketReader(url string, rx *Receiver) *WebSocketReader {
	return &WebSocketReader{
		url:     url,
		rx:      rx,
		dialer:  &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout},
		initial: backoffInitial,
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff when the connection fails or drops.
func (r *WebSocketReader) Run(ctx context.Context) {
	bo := newBackoff(r.initial)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
		if err != nil {
			wait := bo.next()
			slog.Error("receiver: websocket dial failed, will retry",
				"url", r.url, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("receiver: websocket connected", "url", r.url)
		bo.reset()

		err = r.read(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("receiver: websocket connection lost, will reconnect",
			"url", r.url, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// read consumes messages until the connection fails or ctx is cancelled.
func (r *WebSocketReader) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.TextMessage {
			continue
		}
		r.rx.HandleText(r.url, string(msg))
	}
}
