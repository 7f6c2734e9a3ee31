package relay

import (
	"io"
	"log/slog"
	"time"
)

// Option customizes the Registry, Engine, and Pipeline constructors. Options
// that do not apply to a constructor are ignored by it.
type Option func(*options)

type options struct {
	log              *slog.Logger
	now              func() time.Time
	maxContentLength int
	guestName        func() string
}

func newOptions(opts []Option) options {
	o := options{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		guestName: GuestName,
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

// WithClock overrides the server clock used to timestamp envelopes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxContentLength rejects sends whose content exceeds n runes. Zero
// disables the limit.
func WithMaxContentLength(n int) Option {
	return func(o *options) { o.maxContentLength = max(n, 0) }
}

// WithGuestNames overrides the generator of fallback display names.
func WithGuestNames(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.guestName = gen
		}
	}
}
