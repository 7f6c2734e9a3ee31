package wshandler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn is the relay.Conn of one WebSocket. Send only enqueues; writePump
// is the single writer of the socket.
type wsConn struct {
	ws        *websocket.Conn
	send      chan chat.Outbound
	done      chan struct{}
	closeOnce sync.Once
}

// Interface compliance
var _ relay.Conn = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn, queue int) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan chat.Outbound, queue),
		done: make(chan struct{}),
	}
}

// Send queues frame for writing. It never blocks: a closed connection returns
// relay.ErrConnClosed and a full queue returns relay.ErrSlowConsumer.
func (c *wsConn) Send(frame chat.Outbound) error {
	select {
	case <-c.done:
		return relay.ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return relay.ErrSlowConsumer
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// goingAway sends a close frame and closes the socket.
func (c *wsConn) goingAway() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.close()
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
