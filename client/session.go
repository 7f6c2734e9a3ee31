package client

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/ggoodman/fleetsocket/chat"
)

// Transport carries client frames to the server. Send may block until the
// frame is written and fails once the connection is gone.
type Transport interface {
	Send(frame chat.Inbound) error
}

// Session is the client-side state of one chat user: active room, display
// name, rendered messages and unsent messages. It is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	room      string
	name      string
	messages  []chat.Envelope
	outbox    Outbox
	transport Transport

	log      *slog.Logger
	now      func() time.Time
	newID    func() string
	onChange func(Change)
	onState  func(bool)
}

func NewSession(room, name string, opts ...Option) *Session {
	o := newOptions(opts)
	return newSession(room, name, o)
}

func newSession(room, name string, o options) *Session {
	return &Session{
		room:     room,
		name:     name,
		log:      o.log,
		now:      o.now,
		newID:    o.newID,
		onChange: o.onChange,
		onState:  o.onState,
	}
}

// Send shows content in the active room immediately and transmits it, or
// queues it while disconnected. Blank content is ignored. The returned
// envelope is the optimistic entry.
func (s *Session) Send(content string) (chat.Envelope, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Envelope{}, false
	}

	s.mu.Lock()
	env := chat.Envelope{
		ID:      s.newID(),
		RoomID:  s.room,
		From:    s.name,
		Content: content,
		TS:      s.now().UnixMilli(),
	}
	s.messages = append(s.messages, env)

	lost := false
	if s.transport == nil {
		s.outbox.Push(env)
	} else if err := s.transport.Send(chat.SendRequest(env)); err != nil {
		s.log.Warn("client.send.fail", slog.String("err", err.Error()))
		s.outbox.Push(env)
		s.transport = nil
		lost = true
	}
	s.mu.Unlock()

	s.onChange(Change{Messages: []chat.Envelope{env}})
	if lost {
		s.onState(false)
	}
	return env, true
}

// Ready attaches a freshly connected transport: it announces the name, joins
// the active room, then drains the Outbox in order. On error the Session
// stays disconnected and keeps whatever was not transmitted.
func (s *Session) Ready(t Transport) error {
	s.mu.Lock()
	err := s.handshake(t)
	if err == nil {
		s.transport = t
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.onState(true)
	return nil
}

func (s *Session) handshake(t Transport) error {
	if err := t.Send(chat.SetNameRequest(s.name)); err != nil {
		return fmt.Errorf("send setName: %w", err)
	}
	if err := t.Send(chat.JoinRequest(s.room)); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	if err := s.outbox.Drain(func(env chat.Envelope) error {
		return t.Send(chat.SendRequest(env))
	}); err != nil {
		return fmt.Errorf("drain outbox: %w", err)
	}
	return nil
}

// Disconnected detaches the transport. Later sends are queued.
func (s *Session) Disconnected() {
	s.mu.Lock()
	was := s.transport != nil
	s.transport = nil
	s.mu.Unlock()

	if was {
		s.onState(false)
	}
}

// Connected reports whether a transport is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// Receive applies a server frame.
func (s *Session) Receive(frame chat.Outbound) {
	var change *Change

	s.mu.Lock()
	switch frame.Type {
	case chat.TypeHistory:
		if frame.RoomID != s.room {
			break
		}
		// Unconfirmed optimistic entries are dropped along with the old list.
		s.messages = slices.Clone(frame.Messages)
		change = &Change{Replaced: true, Messages: slices.Clone(s.messages)}

	case chat.TypeMessage:
		env, ok := frame.Envelope()
		if !ok || env.RoomID != s.room {
			break
		}
		if lo.ContainsBy(s.messages, func(m chat.Envelope) bool { return IsDuplicate(m, env) }) {
			break
		}
		s.messages = append(s.messages, env)
		change = &Change{Messages: []chat.Envelope{env}}

	case chat.TypeNameSet:
		if frame.Name != "" {
			s.name = frame.Name
		}

	case chat.TypeSent:
		// The broadcast copy already reconciles the optimistic entry.

	default:
		s.log.Debug("client.frame.unknown", slog.String("type", string(frame.Type)))
	}
	s.mu.Unlock()

	if change != nil {
		s.onChange(*change)
	}
}

// SetRoom switches the active room. The rendered list is cleared and, when
// connected, the new room is joined and its history requested.
func (s *Session) SetRoom(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("room is required")
	}

	s.mu.Lock()
	s.room = room
	s.messages = nil
	err := s.transmitLocked(chat.JoinRequest(room))
	s.mu.Unlock()

	s.onChange(Change{Replaced: true, Messages: []chat.Envelope{}})
	if err != nil {
		s.onState(false)
	}
	return err
}

// SetName changes the display name used for later sends.
func (s *Session) SetName(name string) error {
	s.mu.Lock()
	s.name = strings.TrimSpace(name)
	err := s.transmitLocked(chat.SetNameRequest(s.name))
	s.mu.Unlock()

	if err != nil {
		s.onState(false)
	}
	return err
}

// transmitLocked sends frame when connected. A failed send detaches the
// transport and the caller reports the disconnect; the next Ready repeats the
// handshake.
func (s *Session) transmitLocked(frame chat.Inbound) error {
	if s.transport == nil {
		return nil
	}
	if err := s.transport.Send(frame); err != nil {
		s.transport = nil
		return fmt.Errorf("send %s: %w", frame.Type, err)
	}
	return nil
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Messages returns a copy of the rendered list.
func (s *Session) Messages() []chat.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Pending reports the number of queued sends.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.Len()
}
