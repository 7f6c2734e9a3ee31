package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
)

// roomSub tracks the broker subscription of one room. ready is closed once
// the first subscribe attempt finishes; sub and err are written before that.
type roomSub struct {
	ready chan struct{}
	sub   store.Subscription
	err   error
}

// Engine owns this process's broker subscriptions and delivers every
// envelope published on a subscribed room to the local members of that room.
//
// A room moves from unsubscribed to subscribed exactly once; there is no way
// back short of Close.
type Engine struct {
	registry *Registry
	store    store.Store
	log      *slog.Logger

	// ctx bounds every subscription; cancel tears them all down.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*roomSub
}

func NewEngine(registry *Registry, st store.Store, opts ...Option) *Engine {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		registry: registry,
		store:    st,
		log:      o.log,
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[string]*roomSub),
	}
}

// EnsureSubscribed subscribes this process to roomID unless it already is.
// Concurrent first callers share a single subscribe; if it fails the room
// stays unsubscribed and a later call tries again.
func (e *Engine) EnsureSubscribed(ctx context.Context, roomID string) error {
	e.mu.Lock()
	rs, ok := e.rooms[roomID]
	if ok {
		e.mu.Unlock()
		select {
		case <-rs.ready:
			return rs.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	rs = &roomSub{ready: make(chan struct{})}
	e.rooms[roomID] = rs
	e.mu.Unlock()

	sub, err := e.store.Subscribe(e.ctx, roomID, e.deliver)

	e.mu.Lock()
	rs.sub, rs.err = sub, err
	if err != nil {
		rs.err = fmt.Errorf("subscribe room %q: %w", roomID, err)
		delete(e.rooms, roomID)
	}
	e.mu.Unlock()
	close(rs.ready)

	if rs.err != nil {
		e.log.ErrorContext(ctx, "room.subscribe.fail", slog.String("room_id", roomID), slog.String("err", err.Error()))
		return rs.err
	}
	e.log.DebugContext(ctx, "room.subscribe.ok", slog.String("room_id", roomID))
	return nil
}

// Subscribed reports whether this process holds a live subscription for roomID.
func (e *Engine) Subscribed(roomID string) bool {
	e.mu.Lock()
	rs, ok := e.rooms[roomID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-rs.ready:
		return rs.err == nil
	default:
		return false
	}
}

// deliver is the broker handler: it hands env to every local member of its
// room. A failing member never prevents delivery to the others.
func (e *Engine) deliver(ctx context.Context, env chat.Envelope) {
	frame := chat.Broadcast(env)
	for _, m := range e.registry.SessionsInRoom(env.RoomID) {
		if err := sendFrame(m.Conn, frame); err != nil {
			e.log.DebugContext(ctx, "fanout.deliver.fail",
				slog.String("room_id", env.RoomID),
				slog.String("session_id", string(m.ID)),
				slog.String("err", err.Error()),
			)
		}
	}
}

// sendFrame isolates a misbehaving Conn, including one that panics.
func sendFrame(conn Conn, frame chat.Outbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conn send panic: %v", r)
		}
	}()
	return conn.Send(frame)
}

// Close cancels every room subscription.
func (e *Engine) Close() error {
	e.cancel()
	e.mu.Lock()
	rooms := e.rooms
	e.rooms = make(map[string]*roomSub)
	e.mu.Unlock()

	for _, rs := range rooms {
		<-rs.ready
		if rs.sub != nil {
			_ = rs.sub.Close()
		}
	}
	return nil
}
