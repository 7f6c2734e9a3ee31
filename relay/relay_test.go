package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
	"github.com/ggoodman/fleetsocket/store/memorystore"
)

// recordConn collects every frame handed to it.
type recordConn struct {
	mu     sync.Mutex
	frames []chat.Outbound
	signal chan struct{}
}

func newRecordConn() *recordConn {
	return &recordConn{signal: make(chan struct{}, 1024)}
}

func (c *recordConn) Send(frame chat.Outbound) error {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

func (c *recordConn) messages() []chat.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chat.Envelope
	for _, f := range c.frames {
		if env, ok := f.Envelope(); ok && f.Type == chat.TypeMessage {
			out = append(out, env)
		}
	}
	return out
}

func (c *recordConn) waitMessages(t *testing.T, n int) []chat.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.messages(); len(got) >= n {
			return got
		}
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages; got %d", n, len(c.messages()))
		}
	}
}

type failConn struct{ err error }

func (c failConn) Send(chat.Outbound) error { return c.err }

type panicConn struct{}

func (panicConn) Send(chat.Outbound) error { panic("boom") }

// countingStore counts Subscribe calls and can be told to fail them.
type countingStore struct {
	store.Store
	subscribes atomic.Int32
	failNext   atomic.Bool
	delay      time.Duration
}

func (s *countingStore) Subscribe(ctx context.Context, roomID string, h store.Handler) (store.Subscription, error) {
	s.subscribes.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.failNext.CompareAndSwap(true, false) {
		return nil, errors.New("broker unavailable")
	}
	return s.Store.Subscribe(ctx, roomID, h)
}

type node struct {
	registry *Registry
	engine   *Engine
	pipeline *Pipeline
}

func newNode(t *testing.T, st store.Store, opts ...Option) *node {
	t.Helper()
	reg := NewRegistry(opts...)
	eng := NewEngine(reg, st, opts...)
	t.Cleanup(func() { _ = eng.Close() })
	return &node{registry: reg, engine: eng, pipeline: NewPipeline(reg, eng, st, opts...)}
}

func (n *node) join(t *testing.T, conn Conn, roomID string) SessionID {
	t.Helper()
	id := n.registry.Register(conn)
	if _, err := n.pipeline.HandleJoin(context.Background(), id, roomID); err != nil {
		t.Fatalf("join %q: %v", roomID, err)
	}
	return id
}

func TestRegistrySessionLifecycle(t *testing.T) {
	reg := NewRegistry(WithGuestNames(func() string { return "Guest-7" }))
	id := reg.Register(newRecordConn())

	name, err := reg.Name(id)
	if err != nil || name != "Guest-7" {
		t.Fatalf("initial name = %q, %v", name, err)
	}
	if got, _ := reg.SetName(id, "alice"); got != "alice" {
		t.Fatalf("SetName = %q", got)
	}
	if got, _ := reg.SetName(id, "   "); got != "Guest-7" {
		t.Fatalf("blank SetName = %q, want guest fallback", got)
	}
	if got, _ := reg.SetName(id, " \tbob "); got != "bob" {
		t.Fatalf("padded SetName = %q, want trimmed", got)
	}
	if name, _ := reg.Name(id); name != "bob" {
		t.Fatalf("stored name = %q, want trimmed", name)
	}

	_ = reg.Join(id, "General")
	_ = reg.Join(id, "General")
	rooms, _ := reg.Rooms(id)
	if len(rooms) != 1 || rooms[0] != "General" {
		t.Fatalf("rooms = %v", rooms)
	}
	if len(reg.SessionsInRoom("General")) != 1 {
		t.Fatalf("expected one member")
	}

	reg.Unregister(id)
	reg.Unregister(id)
	if reg.Len() != 0 || len(reg.SessionsInRoom("General")) != 0 {
		t.Fatalf("session still present after unregister")
	}
	if _, err := reg.Name(id); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Name after unregister err = %v", err)
	}
}

func TestGuestNameFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		name := GuestName()
		var n int
		if _, err := fmt.Sscanf(name, "Guest-%d", &n); err != nil || n < 0 || n > 999 {
			t.Fatalf("GuestName() = %q", name)
		}
	}
}

func TestEngineSubscribesOncePerRoom(t *testing.T) {
	cs := &countingStore{Store: memorystore.New(), delay: 20 * time.Millisecond}
	n := newNode(t, cs)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.engine.EnsureSubscribed(context.Background(), "General"); err != nil {
				t.Errorf("EnsureSubscribed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := cs.subscribes.Load(); got != 1 {
		t.Fatalf("subscribe calls = %d, want 1", got)
	}
	if !n.engine.Subscribed("General") {
		t.Fatalf("room not marked subscribed")
	}
}

func TestEngineRetriesAfterFailedSubscribe(t *testing.T) {
	cs := &countingStore{Store: memorystore.New()}
	cs.failNext.Store(true)
	n := newNode(t, cs)

	if err := n.engine.EnsureSubscribed(context.Background(), "General"); err == nil {
		t.Fatalf("expected subscribe failure")
	}
	if n.engine.Subscribed("General") {
		t.Fatalf("room marked subscribed after failure")
	}
	if err := n.engine.EnsureSubscribed(context.Background(), "General"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := cs.subscribes.Load(); got != 2 {
		t.Fatalf("subscribe calls = %d, want 2", got)
	}
}

func TestFanOutToRoomMembers(t *testing.T) {
	st := memorystore.New()
	n := newNode(t, st)

	a, b, other := newRecordConn(), newRecordConn(), newRecordConn()
	idA := n.join(t, a, "General")
	n.join(t, b, "General")
	n.join(t, other, "Random")
	_, _ = n.registry.SetName(idA, "A")

	if _, err := n.pipeline.HandleSend(context.Background(), idA, "General", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, c := range []*recordConn{a, b} {
		got := c.waitMessages(t, 1)
		if len(got) != 1 || got[0].Content != "hi" || got[0].From != "A" || got[0].RoomID != "General" {
			t.Fatalf("delivered = %+v", got)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := other.messages(); len(got) != 0 {
		t.Fatalf("other room received %+v", got)
	}
}

func TestFanOutIsolatesFailingConn(t *testing.T) {
	st := memorystore.New()
	n := newNode(t, st)

	n.join(t, failConn{err: ErrSlowConsumer}, "General")
	n.join(t, panicConn{}, "General")
	ok := newRecordConn()
	idOK := n.join(t, ok, "General")

	for _, content := range []string{"one", "two"} {
		if _, err := n.pipeline.HandleSend(context.Background(), idOK, "General", content); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	got := ok.waitMessages(t, 2)
	if got[0].Content != "one" || got[1].Content != "two" {
		t.Fatalf("healthy conn got %+v", got)
	}
}

func TestFanOutAcrossProcesses(t *testing.T) {
	st := memorystore.New()
	n1 := newNode(t, st)
	n2 := newNode(t, st)

	c1, c2 := newRecordConn(), newRecordConn()
	id1 := n1.join(t, c1, "General")
	n2.join(t, c2, "General")

	if _, err := n1.pipeline.HandleSend(context.Background(), id1, "General", "across"); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, c := range []*recordConn{c1, c2} {
		if got := c.waitMessages(t, 1); got[0].Content != "across" {
			t.Fatalf("got %+v", got)
		}
	}
}

func TestSendPreservesSenderOrder(t *testing.T) {
	st := memorystore.New()
	n := newNode(t, st)
	c := newRecordConn()
	id := n.join(t, c, "General")

	const total = 100
	for i := 0; i < total; i++ {
		if _, err := n.pipeline.HandleSend(context.Background(), id, "General", strconv.Itoa(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	got := c.waitMessages(t, total)
	for i, env := range got {
		if env.Content != strconv.Itoa(i) {
			t.Fatalf("message %d = %q", i, env.Content)
		}
	}

	hist, err := st.RangeRecent(context.Background(), "General", chat.HistoryLimit)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(hist) != chat.HistoryLimit || hist[0].Content != strconv.Itoa(total-chat.HistoryLimit) {
		t.Fatalf("history window wrong: len=%d first=%q", len(hist), hist[0].Content)
	}
}

func TestJoinReturnsHistoryOldestFirst(t *testing.T) {
	st := memorystore.New()
	n := newNode(t, st)
	sender := n.join(t, newRecordConn(), "General")
	for _, s := range []string{"a", "b", "c"} {
		if _, err := n.pipeline.HandleSend(context.Background(), sender, "General", s); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	id := n.registry.Register(newRecordConn())
	hist, err := n.pipeline.HandleJoin(context.Background(), id, "General")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(hist) != 3 || hist[0].Content != "a" || hist[2].Content != "c" {
		t.Fatalf("history = %+v", hist)
	}

	empty, err := n.pipeline.HandleJoin(context.Background(), id, "Nowhere")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty room history = %v, %v", empty, err)
	}
}

func TestSendValidation(t *testing.T) {
	st := memorystore.New()
	n := newNode(t, st, WithMaxContentLength(5))
	c := newRecordConn()
	id := n.join(t, c, "General")

	cases := []struct {
		name    string
		room    string
		content string
	}{
		{"whitespace", "General", "   "},
		{"empty", "General", ""},
		{"no room", "", "hello"},
		{"too long", "General", "123456"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := n.pipeline.HandleSend(context.Background(), id, tc.room, tc.content); !errors.Is(err, ErrInvalidSend) {
				t.Fatalf("err = %v, want ErrInvalidSend", err)
			}
		})
	}

	hist, _ := st.RangeRecent(context.Background(), "General", chat.HistoryLimit)
	if len(hist) != 0 {
		t.Fatalf("rejected sends were stored: %+v", hist)
	}
	if got := c.messages(); len(got) != 0 {
		t.Fatalf("rejected sends were broadcast: %+v", got)
	}

	if _, err := n.pipeline.HandleSend(context.Background(), id, "General", "héllo"); err != nil {
		t.Fatalf("five-rune content rejected: %v", err)
	}
}

func TestSendStampsEnvelope(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	st := memorystore.New()
	n := newNode(t, st, WithClock(func() time.Time { return at }))
	id := n.registry.Register(newRecordConn())
	_, _ = n.registry.SetName(id, "bob")

	env, err := n.pipeline.HandleSend(context.Background(), id, "Elsewhere", " spaced ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if env.ID == "" || env.TS != at.UnixMilli() || env.From != "bob" || env.Content != " spaced " || env.RoomID != "Elsewhere" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestUnknownSession(t *testing.T) {
	n := newNode(t, memorystore.New())
	if _, err := n.pipeline.HandleSend(context.Background(), "nope", "General", "hi"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("send err = %v", err)
	}
	if _, err := n.pipeline.HandleJoin(context.Background(), "nope", "General"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("join err = %v", err)
	}
	if _, err := n.pipeline.HandleJoin(context.Background(), "nope", ""); !errors.Is(err, ErrInvalidJoin) {
		t.Fatalf("empty join err = %v", err)
	}
}
