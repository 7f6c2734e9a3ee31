package relay

import (
	"errors"

	"github.com/ggoodman/fleetsocket/chat"
)

var (
	// ErrConnClosed is returned by Conn.Send once the connection is gone.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Conn.Send when the outbound queue is full.
	ErrSlowConsumer = errors.New("connection outbound queue full")
	// ErrUnknownSession indicates a lookup for a session that was never
	// registered or was already unregistered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrInvalidSend is returned for a send with empty content or no room.
	// Transports drop such requests without replying.
	ErrInvalidSend = errors.New("invalid send request")
	// ErrInvalidJoin is returned for a join without a room.
	ErrInvalidJoin = errors.New("invalid join request")
)

// Conn is the outbound half of a client connection. Send must not block on
// a slow peer: implementations queue the frame or fail fast.
type Conn interface {
	Send(frame chat.Outbound) error
}
