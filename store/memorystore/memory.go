package memorystore

import (
	"context"
	"sync"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
)

const subscriptionBuffer = 256

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu        sync.Mutex
	rooms     map[string]*room
	retention int
}

type room struct {
	messages []chat.Envelope
	subs     map[*subscription]struct{}

	// pubMu serializes publishers so that every subscriber observes the same
	// order.
	pubMu sync.Mutex
}

type subscription struct {
	st      *Store
	roomID  string
	handler store.Handler
	queue   chan chat.Envelope
	stopCh  chan struct{}
	once    sync.Once
}

// Option customizes a Store.
type Option func(*Store)

// WithRetention overrides the per-room cap (default chat.RetentionLimit).
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		rooms:     make(map[string]*room),
		retention: chat.RetentionLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, roomID string, env chat.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.ensureRoomLocked(roomID)
	r.messages = append(r.messages, env)
	if over := len(r.messages) - s.retention; over > 0 {
		copy(r.messages, r.messages[over:])
		clear(r.messages[s.retention:])
		r.messages = r.messages[:s.retention]
	}
	return nil
}

func (s *Store) RangeRecent(ctx context.Context, roomID string, n int) ([]chat.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []chat.Envelope{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return []chat.Envelope{}, nil
	}
	start := max(len(r.messages)-n, 0)
	out := make([]chat.Envelope, len(r.messages)-start)
	copy(out, r.messages[start:])
	return out, nil
}

func (s *Store) Publish(ctx context.Context, roomID string, env chat.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	r := s.ensureRoomLocked(roomID)
	s.mu.Unlock()

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	s.mu.Lock()
	subs := make([]*subscription, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.queue <- env:
		case <-sub.stopCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, roomID string, handler store.Handler) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		st:      s,
		roomID:  roomID,
		handler: handler,
		queue:   make(chan chat.Envelope, subscriptionBuffer),
		stopCh:  make(chan struct{}),
	}

	s.mu.Lock()
	s.ensureRoomLocked(roomID).subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

func (s *Store) ensureRoomLocked(roomID string) *room {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{subs: make(map[*subscription]struct{})}
		s.rooms[roomID] = r
	}
	return r
}

func (sub *subscription) run(ctx context.Context) {
	defer sub.Close()
	for {
		select {
		case env := <-sub.queue:
			sub.handler(ctx, env)
		case <-sub.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.st.mu.Lock()
		if r, ok := sub.st.rooms[sub.roomID]; ok {
			delete(r.subs, sub)
		}
		sub.st.mu.Unlock()
		close(sub.stopCh)
	})
	return nil
}

// Interface compliance
var (
	_ store.Store        = (*Store)(nil)
	_ store.Subscription = (*subscription)(nil)
)
