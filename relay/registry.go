package relay

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// SessionID identifies a live connection. It is opaque to clients.
type SessionID string

// GuestName returns a generated display name of the form "Guest-<n>".
func GuestName() string {
	return fmt.Sprintf("Guest-%d", rand.IntN(1000))
}

type session struct {
	conn  Conn
	name  string
	rooms map[string]struct{}
}

// Session is a point-in-time view of a live session.
type Session struct {
	ID   SessionID
	Name string
	Conn Conn
}

// Registry tracks every live session of this process. Sessions are created on
// connection, grow their room set through Join, and disappear on Unregister.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[SessionID]*session
	log       *slog.Logger
	guestName func() string
}

func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts)
	return &Registry{
		sessions:  make(map[SessionID]*session),
		log:       o.log,
		guestName: o.guestName,
	}
}

// Register creates a session with a guest name and no rooms.
func (r *Registry) Register(conn Conn) SessionID {
	id := SessionID(uuid.NewString())
	r.mu.Lock()
	r.sessions[id] = &session{
		conn:  conn,
		name:  r.guestName(),
		rooms: make(map[string]struct{}),
	}
	r.mu.Unlock()
	return id
}

// Unregister removes the session. Unknown ids are ignored: a connection may
// close while its last request is still in flight.
func (r *Registry) Unregister(id SessionID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// SetName overwrites the display name with the trimmed name and returns the
// resolved value. A blank name falls back to a generated guest name.
func (r *Registry) SetName(id SessionID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.guestName()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", r.unknown(id)
	}
	s.name = name
	return name, nil
}

// Name returns the current display name of the session.
func (r *Registry) Name(id SessionID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", r.unknown(id)
	}
	return s.name, nil
}

// Join adds roomID to the session's rooms. Joining twice is a no-op.
func (r *Registry) Join(id SessionID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return r.unknown(id)
	}
	s.rooms[roomID] = struct{}{}
	return nil
}

// Rooms returns the rooms joined by the session, in no particular order.
func (r *Registry) Rooms(id SessionID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, r.unknown(id)
	}
	return lo.Keys(s.rooms), nil
}

// SessionsInRoom snapshots every session currently joined to roomID.
func (r *Registry) SessionsInRoom(roomID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for id, s := range r.sessions {
		if _, ok := s.rooms[roomID]; ok {
			out = append(out, Session{ID: id, Name: s.name, Conn: s.conn})
		}
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) unknown(id SessionID) error {
	r.log.Error("registry.session.unknown", slog.String("session_id", string(id)))
	return fmt.Errorf("%w: %s", ErrUnknownSession, id)
}
