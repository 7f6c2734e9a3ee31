package client

import (
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ggoodman/fleetsocket/chat"
)

// Change describes an update of the rendered message list. When Replaced is
// set, Messages is the whole new list; otherwise it holds the entries
// appended to the end.
type Change struct {
	Replaced bool
	Messages []chat.Envelope
}

// Option configures a Session or a Client.
type Option func(*options)

type options struct {
	log        *slog.Logger
	now        func() time.Time
	newID      func() string
	onChange   func(Change)
	onState    func(connected bool)
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
}

func newOptions(opts []Option) options {
	o := options{
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    uuid.NewString,
		onChange: func(Change) {},
		onState:  func(bool) {},
		dialer:   websocket.DefaultDialer,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the clock used to stamp optimistic envelopes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDs overrides the generator of optimistic envelope ids.
func WithIDs(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// OnChange registers a callback invoked after every change of the rendered
// list. It runs without Session locks held.
func OnChange(fn func(Change)) Option {
	return func(o *options) {
		if fn != nil {
			o.onChange = fn
		}
	}
}

// OnState registers a callback invoked when connectivity changes.
func OnState(fn func(connected bool)) Option {
	return func(o *options) {
		if fn != nil {
			o.onState = fn
		}
	}
}

// WithDialer overrides the WebSocket dialer used by Client.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithBackOff overrides the reconnect policy of Client. The function is
// called once per Run.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(o *options) {
		if fn != nil {
			o.newBackOff = fn
		}
	}
}
