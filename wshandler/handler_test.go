package wshandler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
	"github.com/ggoodman/fleetsocket/store/memorystore"
)

func newTestServer(t *testing.T, st store.Store, opts ...Option) (*Handler, *httptest.Server) {
	t.Helper()
	h, err := New(st, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		_ = h.Close()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, frame chat.Inbound) {
	t.Helper()
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("write %s: %v", frame.Type, err)
	}
}

func read(t *testing.T, ws *websocket.Conn) chat.Outbound {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, err := chat.DecodeOutbound(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

// readType reads frames until one of type want arrives.
func readType(t *testing.T, ws *websocket.Conn, want chat.FrameType) chat.Outbound {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := read(t, ws); f.Type == want {
			return f
		}
	}
	t.Fatalf("no %s frame received", want)
	return chat.Outbound{}
}

// joinAs names the session and joins roomID, consuming both replies.
func joinAs(t *testing.T, ws *websocket.Conn, name, roomID string) []chat.Envelope {
	t.Helper()
	write(t, ws, chat.SetNameRequest(name))
	if f := read(t, ws); f.Type != chat.TypeNameSet || f.Name != name {
		t.Fatalf("expected nameSet %q, got %+v", name, f)
	}
	write(t, ws, chat.JoinRequest(roomID))
	f := read(t, ws)
	if f.Type != chat.TypeHistory || f.RoomID != roomID {
		t.Fatalf("expected history for %q, got %+v", roomID, f)
	}
	return f.Messages
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != `{"ok":true}` {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
}

func TestProtocolSchema(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())

	resp, err := http.Get(srv.URL + "/protocol.schema.json")
	if err != nil {
		t.Fatalf("GET schema: %v", err)
	}
	defer resp.Body.Close()
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if _, ok := doc["inbound"]; !ok {
		t.Fatalf("schema missing inbound: %v", doc)
	}
}

func TestNameDefaultsToGuest(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())
	ws := dial(t, srv, "/ws")

	write(t, ws, chat.SetNameRequest(""))
	f := read(t, ws)
	if f.Type != chat.TypeNameSet || !strings.HasPrefix(f.Name, "Guest-") {
		t.Fatalf("got %+v", f)
	}
}

func TestJoinEmptyRoomSendsEmptyHistory(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())
	ws := dial(t, srv, "/")

	write(t, ws, chat.JoinRequest("General"))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"history","roomId":"General","messages":[]}`+"\n" {
		t.Fatalf("history frame = %s", data)
	}
}

func TestBroadcastReachesRoomMembersOnce(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())
	a := dial(t, srv, "/ws")
	b := dial(t, srv, "/ws")
	joinAs(t, a, "A", "General")
	joinAs(t, b, "B", "General")

	write(t, a, chat.Inbound{Type: chat.TypeSend, RoomID: "General", Content: "hi"})

	// The sender gets its ack and its own broadcast, in either order.
	var ack chat.Envelope
	var echoes []chat.Outbound
	for i := 0; i < 2; i++ {
		switch f := read(t, a); f.Type {
		case chat.TypeSent:
			ack, _ = f.Envelope()
		case chat.TypeMessage:
			echoes = append(echoes, f)
		default:
			t.Fatalf("unexpected frame %+v", f)
		}
	}
	if ack.Content != "hi" || ack.From != "A" || len(echoes) != 1 {
		t.Fatalf("sender got ack %+v, echoes %+v", ack, echoes)
	}
	echoes = append(echoes, read(t, b))

	for _, f := range echoes {
		if f.Type != chat.TypeMessage || f.Payload == nil || f.Payload.ID != ack.ID || f.Payload.From != "A" || f.Payload.RoomID != "General" {
			t.Fatalf("broadcast = %+v", f)
		}
	}

	// Nothing else follows for b.
	_ = b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := b.ReadMessage(); err == nil {
		t.Fatalf("unexpected extra frame %s", data)
	}
}

func TestInvalidFramesAreDropped(t *testing.T) {
	st := memorystore.New()
	_, srv := newTestServer(t, st)
	ws := dial(t, srv, "/ws")
	joinAs(t, ws, "A", "General")

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	write(t, ws, chat.Inbound{Type: "shout", RoomID: "General"})
	write(t, ws, chat.Inbound{Type: chat.TypeSend, RoomID: "General", Content: "   "})
	write(t, ws, chat.Inbound{Type: chat.TypeJoin})
	write(t, ws, chat.SetNameRequest("B"))

	if f := read(t, ws); f.Type != chat.TypeNameSet || f.Name != "B" {
		t.Fatalf("expected nameSet after dropped frames, got %+v", f)
	}

	write(t, ws, chat.JoinRequest("General"))
	if f := read(t, ws); f.Type != chat.TypeHistory || len(f.Messages) != 0 {
		t.Fatalf("dropped send was stored: %+v", f)
	}
}

func TestSendIgnoresEchoedEnvelopeFields(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())
	ws := dial(t, srv, "/ws")
	joinAs(t, ws, "A", "General")

	for _, raw := range []string{
		`{"type":"send","roomId":"General","content":"x","ts":1.5,"id":42}`,
		`{"type":"send","roomId":"General","content":"float ts","ts":1700000000000.5}`,
		`{"type":"send","roomId":"General","content":"forged","from":"mallory","id":"dup"}`,
	} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
		f := readType(t, ws, chat.TypeSent)
		env, ok := f.Envelope()
		if !ok || env.From != "A" || env.ID == "" || env.ID == "dup" || env.TS < 1_000_000_000_000 {
			t.Fatalf("%s: ack = %+v", raw, f)
		}
	}
}

func TestHistoryOnJoin(t *testing.T) {
	_, srv := newTestServer(t, memorystore.New())
	a := dial(t, srv, "/ws")
	joinAs(t, a, "A", "General")
	for _, s := range []string{"one", "two"} {
		write(t, a, chat.Inbound{Type: chat.TypeSend, RoomID: "General", Content: s})
		readType(t, a, chat.TypeSent)
	}

	b := dial(t, srv, "/ws")
	hist := joinAs(t, b, "B", "General")
	if len(hist) != 2 || hist[0].Content != "one" || hist[1].Content != "two" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestBroadcastAcrossHandlers(t *testing.T) {
	st := memorystore.New()
	_, srv1 := newTestServer(t, st)
	_, srv2 := newTestServer(t, st)
	a := dial(t, srv1, "/ws")
	b := dial(t, srv2, "/ws")
	joinAs(t, a, "A", "General")
	joinAs(t, b, "B", "General")

	write(t, a, chat.Inbound{Type: chat.TypeSend, RoomID: "General", Content: "hello"})
	f := readType(t, b, chat.TypeMessage)
	if f.Payload == nil || f.Payload.Content != "hello" || f.Payload.From != "A" {
		t.Fatalf("cross-process broadcast = %+v", f)
	}
}

func TestCloseDisconnectsSessions(t *testing.T) {
	h, srv := newTestServer(t, memorystore.New())
	ws := dial(t, srv, "/ws")
	joinAs(t, ws, "A", "General")

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read after Close err = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d after Close", h.Sessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
