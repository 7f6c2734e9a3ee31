package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
)

type joinRequest struct {
	RoomID string `validate:"required"`
}

type sendRequest struct {
	RoomID  string `validate:"required"`
	Content string `validate:"required"`
}

// Pipeline executes client requests against the Registry, Engine and Store.
// Callers invoke it sequentially per session, which is what keeps one
// sender's messages in the order they were sent.
type Pipeline struct {
	registry *Registry
	engine   *Engine
	store    store.Store
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
	maxLen   int
}

func NewPipeline(registry *Registry, engine *Engine, st store.Store, opts ...Option) *Pipeline {
	o := newOptions(opts)
	return &Pipeline{
		registry: registry,
		engine:   engine,
		store:    st,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      o.log,
		now:      o.now,
		maxLen:   o.maxContentLength,
	}
}

// HandleSetName resolves and records the session's display name.
func (p *Pipeline) HandleSetName(id SessionID, name string) (string, error) {
	return p.registry.SetName(id, name)
}

// HandleJoin adds roomID to the session, makes sure this process receives the
// room's broadcasts, and returns the room's recent history oldest first.
//
// The session is marked joined before the subscription is confirmed, so a
// broadcast that races the join can be delivered ahead of the history.
func (p *Pipeline) HandleJoin(ctx context.Context, id SessionID, roomID string) ([]chat.Envelope, error) {
	if err := p.validate.Struct(joinRequest{RoomID: roomID}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJoin, err)
	}
	if err := p.registry.Join(id, roomID); err != nil {
		return nil, err
	}
	if err := p.engine.EnsureSubscribed(ctx, roomID); err != nil {
		return nil, err
	}
	msgs, err := p.store.RangeRecent(ctx, roomID, chat.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history for room %q: %w", roomID, err)
	}
	if msgs == nil {
		msgs = []chat.Envelope{}
	}
	return msgs, nil
}

// HandleSend stamps, persists and publishes a message from the session, and
// returns the envelope for acknowledgement. Content is stored as received.
//
// The sender does not have to be joined to roomID.
func (p *Pipeline) HandleSend(ctx context.Context, id SessionID, roomID, content string) (chat.Envelope, error) {
	if err := p.validateSend(roomID, content); err != nil {
		return chat.Envelope{}, err
	}
	from, err := p.registry.Name(id)
	if err != nil {
		return chat.Envelope{}, err
	}
	env := chat.NewEnvelope(roomID, from, content, p.now())

	if err := p.store.Append(ctx, roomID, env); err != nil {
		return chat.Envelope{}, fmt.Errorf("append to room %q: %w", roomID, err)
	}
	if err := p.store.Publish(ctx, roomID, env); err != nil {
		return chat.Envelope{}, fmt.Errorf("publish to room %q: %w", roomID, err)
	}
	p.log.DebugContext(ctx, "message.accepted", slog.String("room_id", roomID), slog.String("message_id", env.ID))
	return env, nil
}

func (p *Pipeline) validateSend(roomID, content string) error {
	if err := p.validate.Struct(sendRequest{RoomID: roomID, Content: strings.TrimSpace(content)}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSend, err)
	}
	if p.maxLen > 0 {
		if err := p.validate.Var(content, fmt.Sprintf("max=%d", p.maxLen)); err != nil {
			return fmt.Errorf("%w: content longer than %d characters", ErrInvalidSend, p.maxLen)
		}
	}
	return nil
}
