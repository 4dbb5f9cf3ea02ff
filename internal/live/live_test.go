package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/model"
)

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusConnecting, StatusSubscribed, true},
		{StatusSubscribed, StatusChannelError, true},
		{StatusSubscribed, StatusTimedOut, true},
		{StatusChannelError, StatusConnecting, true},
		{StatusTimedOut, StatusConnecting, true},
		{StatusClosed, StatusConnecting, true},
		{StatusSubscribed, StatusConnecting, false},
		{StatusChannelError, StatusSubscribed, false},
		{StatusClosed, StatusSubscribed, false},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("canTransition(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	if StatusSubscribed.ShowsConnecting() || !StatusClosed.ShowsConnecting() {
		t.Fatal("only SUBSCRIBED should hide the connecting indicator")
	}
}

func TestSuppressor_MatchesLogicalMutation(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewSuppressor(Grace{})
	s.now = func() time.Time { return now }

	tent := model.Item{Name: "Tent", Assignee: "Alice", Quantity: "1"}
	s.Mark(model.ChangeUpdate, tent)
	s.Mark(model.ChangeDelete, model.Item{Name: "Stove"})

	if !s.Suppress(model.ChangeUpdate, tent) {
		t.Fatal("identical update echo not suppressed")
	}
	if s.Suppress(model.ChangeUpdate, model.Item{Name: "Tent", Assignee: "Bob", Quantity: "1"}) {
		t.Fatal("update with different values suppressed")
	}
	if s.Suppress(model.ChangeInsert, tent) {
		t.Fatal("insert suppressed by an update mark")
	}
	if !s.Suppress(model.ChangeDelete, model.Item{Name: "Stove", Quantity: "3"}) {
		t.Fatal("delete echo not matched by name")
	}

	now = now.Add(DefaultGrace.Update + time.Millisecond)
	if s.Suppress(model.ChangeUpdate, tent) {
		t.Fatal("update still suppressed after its grace period")
	}
	if !s.Suppress(model.ChangeDelete, model.Item{Name: "Stove"}) {
		t.Fatal("delete grace should outlast update grace")
	}
	now = now.Add(DefaultGrace.Delete)
	if got := s.Active(); got != 0 {
		t.Fatalf("Active() = %d, want 0", got)
	}
}

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, ErrClosed
		}
		return f, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, msg gateway.FeedMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.frames <- data
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fails int
	urls  []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("connection refused")
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

type applied struct {
	mu      sync.Mutex
	changes []string
}

func (a *applied) apply(kind model.ChangeKind, item model.Item) bool {
	a.mu.Lock()
	a.changes = append(a.changes, string(kind)+":"+item.Name+":"+item.Assignee)
	a.mu.Unlock()
	return true
}

func (a *applied) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.changes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestListener_AppliesRemoteChangesAndDropsEchoes(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	got := &applied{}
	l := NewListener(Options{
		Dialer:  dialer,
		GroupID: func() string { return "g-1" },
		URL:     func(id string) string { return "ws://feed/" + id },
		Apply:   got.apply,
		Origin:  "me",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	conn.send(t, gateway.FeedMessage{Type: gateway.FeedSubscribed})
	waitFor(t, "subscribed", func() bool { return l.Status() == StatusSubscribed })

	l.MarkLocalWrite(model.ChangeDelete, model.Item{Name: "Map"})

	conn.send(t, gateway.FeedMessage{Type: gateway.FeedChange, Kind: "INSERT", Origin: "other",
		After: &gateway.ItemRecord{GroupID: "g-1", ItemName: "Tent"}})
	conn.send(t, gateway.FeedMessage{Type: gateway.FeedChange, Kind: "UPDATE", Origin: "me",
		After: &gateway.ItemRecord{GroupID: "g-1", ItemName: "Tent", Assignee: "Alice"}})
	conn.send(t, gateway.FeedMessage{Type: gateway.FeedChange, Kind: "DELETE",
		Before: &gateway.ItemRecord{GroupID: "g-1", ItemName: "Map"}})
	conn.send(t, gateway.FeedMessage{Type: gateway.FeedChange, Kind: "update", Origin: "other",
		After: &gateway.ItemRecord{GroupID: "g-1", ItemName: "Tent", Assignee: "ALL"}})
	conn.send(t, gateway.FeedMessage{Type: gateway.FeedChange, Kind: "INSERT",
		After: &gateway.ItemRecord{GroupID: "g-2", ItemName: "Elsewhere"}})
	conn.send(t, gateway.FeedMessage{Type: gateway.FeedChange, Kind: "DELETE", Origin: "other",
		Before: &gateway.ItemRecord{GroupID: "g-1", ItemName: "Tent"}})

	want := []string{"INSERT:Tent:", "UPDATE:Tent:" + model.AssigneeAll, "DELETE:Tent:"}
	waitFor(t, "changes applied", func() bool { return len(got.list()) == len(want) })
	for i, w := range want {
		if got.list()[i] != w {
			t.Fatalf("change[%d] = %q, want %q", i, got.list()[i], w)
		}
	}
	if _, dropped := l.Stats(); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if l.Status() != StatusClosed {
		t.Fatalf("Status() = %v, want CLOSED", l.Status())
	}
}

func TestListener_ReconnectsAfterFailures(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{fails: 2, conns: []*fakeConn{conn}}

	var mu sync.Mutex
	var seen []Status
	l := NewListener(Options{
		Dialer:        dialer,
		GroupID:       func() string { return "g-1" },
		URL:           func(id string) string { return "ws://feed/" + id },
		Apply:         func(model.ChangeKind, model.Item) bool { return true },
		ReconnectBase: time.Millisecond,
		OnStatus: func(s Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	waitFor(t, "second failure", func() bool { return l.NeedsReconnect() })
	conn.send(t, gateway.FeedMessage{Type: gateway.FeedSubscribed})
	waitFor(t, "subscribed", func() bool { return l.Status() == StatusSubscribed })
	if l.NeedsReconnect() {
		t.Fatal("NeedsReconnect() = true after subscribing")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 5 || seen[0] != StatusChannelError || seen[len(seen)-1] != StatusSubscribed {
		t.Fatalf("status sequence = %v, want errors then SUBSCRIBED", seen)
	}
}

func TestListener_CleanCloseReportsClosed(t *testing.T) {
	conn := newFakeConn()
	l := NewListener(Options{
		Dialer:        &fakeDialer{conns: []*fakeConn{conn}},
		GroupID:       func() string { return "g-1" },
		URL:           func(id string) string { return id },
		Apply:         func(model.ChangeKind, model.Item) bool { return true },
		ReconnectBase: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	conn.send(t, gateway.FeedMessage{Type: gateway.FeedSubscribed})
	waitFor(t, "subscribed", func() bool { return l.Status() == StatusSubscribed })
	close(conn.frames)
	waitFor(t, "closed", func() bool { return l.Status() == StatusClosed })
	if !l.NeedsReconnect() {
		t.Fatal("NeedsReconnect() = false for a closed feed")
	}
}

func TestListener_SubscribeTimeout(t *testing.T) {
	conn := newFakeConn()
	l := NewListener(Options{
		Dialer:           &fakeDialer{conns: []*fakeConn{conn}},
		GroupID:          func() string { return "g-1" },
		URL:              func(id string) string { return id },
		Apply:            func(model.ChangeKind, model.Item) bool { return true },
		SubscribeTimeout: 20 * time.Millisecond,
		ReconnectBase:    time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	waitFor(t, "timed out", func() bool { return l.Status() == StatusTimedOut })
}

func TestWebsocketDialer_ReadsTextFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotOrigin string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrigin = r.Header.Get(gateway.OriginHeader)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.PingMessage, []byte("p"))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribed"}`))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	d := NewWebsocketDialer(time.Second, "me")
	conn, err := d.Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer conn.Close()

	data, err := conn.Read()
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != `{"type":"subscribed"}` {
		t.Fatalf("Read = %s, want subscribed frame", data)
	}
	if _, err := conn.Read(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read after close = %v, want ErrClosed", err)
	}
	if gotOrigin != "me" {
		t.Fatalf("origin header = %q, want me", gotOrigin)
	}
}
