package wshandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/internal/logctx"
	"github.com/ggoodman/fleetsocket/relay"
	"github.com/ggoodman/fleetsocket/store"
)

// Handler is the HTTP entry point of a FleetSocket server process.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	upgrader websocket.Upgrader

	registry *relay.Registry
	engine   *relay.Engine
	pipeline *relay.Pipeline

	sendQueue int
	maxFrame  int64
	schema    []byte

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

// New builds a Handler backed by st. The caller owns st; Close releases the
// handler's room subscriptions and connections but leaves st open.
func New(st store.Store, opts ...Option) (*Handler, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	cfg := &config{
		logger:      slog.Default(),
		sendQueue:   defaultSendQueue,
		maxFrame:    defaultMaxFrame,
		maxContent:  defaultMaxContent,
		checkOrigin: func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	schema, err := chat.ProtocolSchema()
	if err != nil {
		return nil, fmt.Errorf("build protocol schema: %w", err)
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})
	relayOpts := []relay.Option{relay.WithLogger(log), relay.WithMaxContentLength(cfg.maxContent)}

	h := &Handler{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.checkOrigin,
		},
		sendQueue: cfg.sendQueue,
		maxFrame:  cfg.maxFrame,
		schema:    schema,
		conns:     make(map[*wsConn]struct{}),
	}
	h.registry = relay.NewRegistry(relayOpts...)
	h.engine = relay.NewEngine(h.registry, st, relayOpts...)
	h.pipeline = relay.NewPipeline(h.registry, h.engine, st, relayOpts...)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleWS)
	mux.HandleFunc("GET /ws", h.handleWS)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /protocol.schema.json", h.handleSchema)
	h.mux = mux

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Sessions reports the number of live connections.
func (h *Handler) Sessions() int {
	return h.registry.Len()
}

// Close tells every live connection the server is going away, closes them,
// and drops all room subscriptions. New upgrades are refused afterwards.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[*wsConn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.goingAway()
	}
	return h.engine.Close()
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(h.schema)
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected websocket upgrade", http.StatusUpgradeRequired)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.log.WarnContext(ctx, "ws.upgrade.fail", slog.String("err", err.Error()))
		return
	}

	c := newWSConn(ws, h.sendQueue)
	if !h.track(c) {
		c.goingAway()
		return
	}
	defer h.untrack(c)

	id := h.registry.Register(c)
	defer h.registry.Unregister(id)

	ctx = logctx.WithConnData(ctx, &logctx.ConnData{
		SessionID:  string(id),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	h.log.InfoContext(ctx, "ws.connect")

	go c.writePump()
	start := time.Now()
	h.readLoop(ctx, id, c)
	c.close()

	h.log.InfoContext(ctx, "ws.disconnect", slog.Duration("duration", time.Since(start)))
}

func (h *Handler) track(c *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Handler) untrack(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// readLoop reads frames until the connection fails and dispatches each one
// before reading the next.
func (h *Handler) readLoop(ctx context.Context, id relay.SessionID, c *wsConn) {
	ws := c.ws
	ws.SetReadLimit(h.maxFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.DebugContext(ctx, "ws.read.fail", slog.String("err", err.Error()))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		in, err := chat.DecodeInbound(data)
		if err != nil {
			h.log.DebugContext(ctx, "frame.decode.fail", slog.String("err", err.Error()))
			continue
		}
		h.dispatch(ctx, id, c, in)
	}
}

func (h *Handler) dispatch(ctx context.Context, id relay.SessionID, c *wsConn, in chat.Inbound) {
	ctx = logctx.WithFrameData(ctx, &logctx.FrameData{Type: string(in.Type), RoomID: in.RoomID})

	switch in.Type {
	case chat.TypeSetName:
		name, err := h.pipeline.HandleSetName(id, in.Name)
		if err != nil {
			h.log.ErrorContext(ctx, "name.set.fail", slog.String("err", err.Error()))
			return
		}
		h.reply(ctx, c, chat.NameSet(name))

	case chat.TypeJoin:
		msgs, err := h.pipeline.HandleJoin(ctx, id, in.RoomID)
		if errors.Is(err, relay.ErrInvalidJoin) {
			h.log.DebugContext(ctx, "frame.drop", slog.String("err", err.Error()))
			return
		}
		if err != nil {
			h.log.ErrorContext(ctx, "room.join.fail", slog.String("err", err.Error()))
			return
		}
		h.reply(ctx, c, chat.History(in.RoomID, msgs))

	case chat.TypeSend:
		env, err := h.pipeline.HandleSend(ctx, id, in.RoomID, in.Content)
		if errors.Is(err, relay.ErrInvalidSend) {
			h.log.DebugContext(ctx, "frame.drop", slog.String("err", err.Error()))
			return
		}
		if err != nil {
			h.log.ErrorContext(ctx, "message.send.fail", slog.String("err", err.Error()))
			return
		}
		h.reply(ctx, c, chat.Sent(env))

	default:
		h.log.DebugContext(ctx, "frame.unknown")
	}
}

func (h *Handler) reply(ctx context.Context, c *wsConn, frame chat.Outbound) {
	if err := c.Send(frame); err != nil {
		h.log.DebugContext(ctx, "ws.reply.drop", slog.String("err", err.Error()))
	}
}
