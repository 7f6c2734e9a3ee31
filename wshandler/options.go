package wshandler

import (
	"log/slog"
	"net/http"
)

const (
	defaultSendQueue  = 256
	defaultMaxFrame   = 64 << 10
	defaultMaxContent = 4000
)

// Option configures a Handler.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	sendQueue   int
	maxFrame    int64
	maxContent  int
	checkOrigin func(*http.Request) bool
}

// WithLogger sets the logger used by the handler and the relay core. If not
// provided, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSendQueue sets the per-connection outbound queue length.
func WithSendQueue(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.sendQueue = n
		}
	}
}

// WithMaxFrameBytes caps the size of a single inbound frame. Larger frames
// close the connection.
func WithMaxFrameBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxFrame = n
		}
	}
}

// WithMaxContentLength caps message content in characters. Zero disables
// the cap.
func WithMaxContentLength(n int) Option {
	return func(c *config) { c.maxContent = max(n, 0) }
}

// WithCheckOrigin overrides the upgrade origin check. The default accepts
// every origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *config) {
		if fn != nil {
			c.checkOrigin = fn
		}
	}
}
