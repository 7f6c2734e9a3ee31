// Package store defines the Message Store consumed by the relay: a bounded,
// append-only list of envelopes per room plus a publish/subscribe channel per
// room shared by every server process.
//
// Implementations
//
//	memorystore : in-process reference used by tests and single-node servers
//	redisstore  : Redis lists + pub/sub for multi-process deployments
//
// Both are exercised by the conformance suite in storetest.
package store

import (
	"context"

	"github.com/ggoodman/fleetsocket/chat"
)

// Handler receives envelopes published on a subscribed room. Calls for a
// single subscription are sequential and follow publish order.
type Handler func(ctx context.Context, env chat.Envelope)

// Subscription is an active room subscription.
type Subscription interface {
	// Close stops delivery. It is safe to call more than once.
	Close() error
}

// Store is the narrow contract the relay needs from durable storage and the
// broker. Rooms are created lazily by the first Append or Subscribe.
type Store interface {
	// Append adds env to the tail of the room's list and evicts the oldest
	// entries beyond the retention limit.
	Append(ctx context.Context, roomID string, env chat.Envelope) error

	// RangeRecent returns up to n of the newest envelopes of a room, oldest
	// first. An unknown room yields an empty result.
	RangeRecent(ctx context.Context, roomID string, n int) ([]chat.Envelope, error)

	// Publish delivers env to every current subscriber of the room across
	// all processes. Delivery is best-effort at-least-once.
	Publish(ctx context.Context, roomID string, env chat.Envelope) error

	// Subscribe registers handler for the room and returns once the
	// subscription is active. Delivery stops when ctx is done or the
	// subscription is closed.
	Subscribe(ctx context.Context, roomID string, handler Handler) (Subscription, error)
}
