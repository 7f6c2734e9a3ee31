package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/ggoodman/fleetsocket/chat"
)

const writeWait = 10 * time.Second

// Client keeps a Session connected to a FleetSocket server.
type Client struct {
	*Session

	url        string
	log        *slog.Logger
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
}

func New(cfg Config, opts ...Option) *Client {
	o := newOptions(opts)
	return &Client{
		Session:    newSession(cfg.Room, cfg.Name, o),
		url:        cfg.URL,
		log:        o.log,
		dialer:     o.dialer,
		newBackOff: o.newBackOff,
	}
}

// Run connects and reconnects until ctx is done, then returns ctx.Err().
// Dial and connection failures only change the Session's connectivity.
func (c *Client) Run(ctx context.Context) error {
	b := c.newBackOff()
	for {
		connected, err := c.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up on %s: %w", c.url, err)
		}
		c.log.WarnContext(ctx, "ws.reconnect", slog.Duration("wait", wait), slog.String("err", errString(err)))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// connect runs one connection to completion. connected reports whether the
// handshake succeeded.
func (c *Client) connect(ctx context.Context) (connected bool, err error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer ws.Close()
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := c.Ready(&wsTransport{ws: ws}); err != nil {
		return false, err
	}
	defer c.Disconnected()
	c.log.InfoContext(ctx, "ws.connect", slog.String("url", c.url))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		frame, err := chat.DecodeOutbound(data)
		if err != nil {
			c.log.DebugContext(ctx, "frame.decode.fail", slog.String("err", err.Error()))
			continue
		}
		c.Receive(frame)
	}
}

// wsTransport serializes writes to one WebSocket.
type wsTransport struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Interface compliance
var _ Transport = (*wsTransport)(nil)

func (t *wsTransport) Send(frame chat.Inbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.ws.WriteJSON(frame); err != nil {
		// Unblock the read loop so Run reconnects now.
		_ = t.ws.Close()
		return fmt.Errorf("write %s: %w", frame.Type, err)
	}
	return nil
}

func errString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
