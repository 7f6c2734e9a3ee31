// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
	"github.com/google/uuid"
)

// StoreFactory creates a new Store instance for testing. Stores returned by
// the factory must use the default retention of chat.RetentionLimit.
type StoreFactory func(t *testing.T) store.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("List_AppendAndRangeRecentOldestFirst", func(t *testing.T) { testAppendAndRangeRecent(t, factory) })
	t.Run("List_RangeRecentReturnsNewestWindow", func(t *testing.T) { testRangeRecentWindow(t, factory) })
	t.Run("List_RetentionEvictsOldestFirst", func(t *testing.T) { testRetention(t, factory) })
	t.Run("List_UnknownRoomIsEmpty", func(t *testing.T) { testUnknownRoom(t, factory) })
	t.Run("List_RoomIsolation", func(t *testing.T) { testRoomIsolation(t, factory) })

	t.Run("PubSub_DeliversInPublishOrder", func(t *testing.T) { testPublishOrder(t, factory) })
	t.Run("PubSub_FanOutToAllSubscribers", func(t *testing.T) { testFanOut(t, factory) })
	t.Run("PubSub_NoCrossRoomDelivery", func(t *testing.T) { testNoCrossRoom(t, factory) })
	t.Run("PubSub_CloseStopsDelivery", func(t *testing.T) { testCloseStopsDelivery(t, factory) })
	t.Run("PubSub_ContextCancellationStopsDelivery", func(t *testing.T) { testContextCancellation(t, factory) })
}

// uniqueRoom keeps rooms apart when a backend is shared between runs.
func uniqueRoom(name string) string {
	return name + "-" + uuid.NewString()
}

func envelope(roomID string, i int) chat.Envelope {
	return chat.Envelope{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		From:    "tester",
		Content: "msg-" + strconv.Itoa(i),
		TS:      int64(1_700_000_000_000 + i),
	}
}

func appendN(t *testing.T, st store.Store, roomID string, n int) []chat.Envelope {
	t.Helper()
	ctx := context.Background()
	out := make([]chat.Envelope, 0, n)
	for i := 0; i < n; i++ {
		env := envelope(roomID, i)
		if err := st.Append(ctx, roomID, env); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		out = append(out, env)
	}
	return out
}

// collector records deliveries and lets tests wait for a count.
type collector struct {
	mu   sync.Mutex
	got  []chat.Envelope
	cond chan struct{}
}

func newCollector() *collector { return &collector{cond: make(chan struct{}, 1)} }

func (c *collector) handle(_ context.Context, env chat.Envelope) {
	c.mu.Lock()
	c.got = append(c.got, env)
	c.mu.Unlock()
	select {
	case c.cond <- struct{}{}:
	default:
	}
}

func (c *collector) snapshot() []chat.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Envelope(nil), c.got...)
}

func (c *collector) waitFor(t *testing.T, n int, timeout time.Duration) []chat.Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-c.cond:
		case <-deadline:
			t.Fatalf("timed out waiting for %d deliveries, got %d", n, len(c.snapshot()))
		}
	}
}

func sameIDs(a, b []chat.Envelope) error {
	if len(a) != len(b) {
		return fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return fmt.Errorf("index %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
	return nil
}

// --- List tests ---

func testAppendAndRangeRecent(t *testing.T, factory StoreFactory) {
	st := factory(t)
	roomID := uniqueRoom("append")
	want := appendN(t, st, roomID, 3)

	got, err := st.RangeRecent(context.Background(), roomID, chat.HistoryLimit)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if err := sameIDs(got, want); err != nil {
		t.Fatalf("unexpected range: %v", err)
	}
	if got[0] != want[0] {
		t.Fatalf("envelope not stored verbatim: got %+v want %+v", got[0], want[0])
	}
}

func testRangeRecentWindow(t *testing.T, factory StoreFactory) {
	st := factory(t)
	roomID := uniqueRoom("window")
	all := appendN(t, st, roomID, 1200)

	got, err := st.RangeRecent(context.Background(), roomID, chat.HistoryLimit)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if err := sameIDs(got, all[len(all)-chat.HistoryLimit:]); err != nil {
		t.Fatalf("expected the last %d in order: %v", chat.HistoryLimit, err)
	}
}

func testRetention(t *testing.T, factory StoreFactory) {
	st := factory(t)
	roomID := uniqueRoom("retention")
	all := appendN(t, st, roomID, chat.RetentionLimit+1)

	got, err := st.RangeRecent(context.Background(), roomID, chat.RetentionLimit*2)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != chat.RetentionLimit {
		t.Fatalf("expected %d retained, got %d", chat.RetentionLimit, len(got))
	}
	if got[0].ID != all[1].ID {
		t.Fatalf("expected the very first envelope to be evicted")
	}
	if got[len(got)-1].ID != all[len(all)-1].ID {
		t.Fatalf("expected the newest envelope at the tail")
	}
}

func testUnknownRoom(t *testing.T, factory StoreFactory) {
	st := factory(t)
	got, err := st.RangeRecent(context.Background(), uniqueRoom("nobody"), chat.HistoryLimit)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func testRoomIsolation(t *testing.T, factory StoreFactory) {
	st := factory(t)
	a, b := uniqueRoom("a"), uniqueRoom("b")
	appendN(t, st, a, 2)
	appendN(t, st, b, 5)

	got, err := st.RangeRecent(context.Background(), a, chat.HistoryLimit)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 envelopes in room a, got %d", len(got))
	}
	for _, env := range got {
		if env.RoomID != a {
			t.Fatalf("room a history contains envelope from %s", env.RoomID)
		}
	}
}

// --- PubSub tests ---

func testPublishOrder(t *testing.T, factory StoreFactory) {
	st := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	roomID := uniqueRoom("order")

	c := newCollector()
	sub, err := st.Subscribe(ctx, roomID, c.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	var want []chat.Envelope
	for i := 0; i < 100; i++ {
		env := envelope(roomID, i)
		if err := st.Publish(ctx, roomID, env); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		want = append(want, env)
	}

	got := c.waitFor(t, len(want), 5*time.Second)
	if err := sameIDs(got, want); err != nil {
		t.Fatalf("delivery order differs from publish order: %v", err)
	}
}

func testFanOut(t *testing.T, factory StoreFactory) {
	st := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	roomID := uniqueRoom("fanout")

	c1, c2 := newCollector(), newCollector()
	s1, err := st.Subscribe(ctx, roomID, c1.handle)
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	defer s1.Close()
	s2, err := st.Subscribe(ctx, roomID, c2.handle)
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}
	defer s2.Close()

	env := envelope(roomID, 0)
	if err := st.Publish(ctx, roomID, env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, c := range []*collector{c1, c2} {
		got := c.waitFor(t, 1, 5*time.Second)
		if got[0].ID != env.ID {
			t.Fatalf("subscriber %d got %s, want %s", i+1, got[0].ID, env.ID)
		}
	}
}

func testNoCrossRoom(t *testing.T, factory StoreFactory) {
	st := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, b := uniqueRoom("a"), uniqueRoom("b")

	ca := newCollector()
	sub, err := st.Subscribe(ctx, a, ca.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := st.Publish(ctx, b, envelope(b, 0)); err != nil {
		t.Fatalf("publish b: %v", err)
	}
	marker := envelope(a, 1)
	if err := st.Publish(ctx, a, marker); err != nil {
		t.Fatalf("publish a: %v", err)
	}

	ca.waitFor(t, 1, 5*time.Second)
	time.Sleep(100 * time.Millisecond)
	got := ca.snapshot()
	if len(got) != 1 || got[0].ID != marker.ID {
		t.Fatalf("expected only the room a marker, got %+v", got)
	}
}

func testCloseStopsDelivery(t *testing.T, factory StoreFactory) {
	st := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	roomID := uniqueRoom("close")

	c := newCollector()
	sub, err := st.Subscribe(ctx, roomID, c.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := st.Publish(ctx, roomID, envelope(roomID, 0)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c.waitFor(t, 1, 5*time.Second)

	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Give an in-flight teardown a moment before publishing again.
	time.Sleep(100 * time.Millisecond)
	if err := st.Publish(ctx, roomID, envelope(roomID, 1)); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := c.snapshot(); len(got) != 1 {
		t.Fatalf("expected no delivery after close, got %d", len(got))
	}
}

func testContextCancellation(t *testing.T, factory StoreFactory) {
	st := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	roomID := uniqueRoom("cancel")

	subCtx, subCancel := context.WithCancel(ctx)
	c := newCollector()
	if _, err := st.Subscribe(subCtx, roomID, c.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	subCancel()
	time.Sleep(200 * time.Millisecond)

	if err := st.Publish(ctx, roomID, envelope(roomID, 0)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("expected no delivery after cancellation, got %d", len(got))
	}
}
