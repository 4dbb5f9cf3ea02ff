// Package live subscribes to a group's change feed and folds remote item
// changes into the ledger, dropping echoes of this client's own writes.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/model"
)

const (
	defaultSubscribeTimeout = 10 * time.Second
	defaultReconnectBase    = time.Second
	maxReconnectDelay       = 30 * time.Second

	// persistentFailures is how many failed attempts in a row count as a
	// persistent error for the reconnect indicator.
	persistentFailures = 2
)

// ApplyFunc receives translated remote changes. *ledger.Ledger's ApplyRemote
// satisfies it.
type ApplyFunc func(kind model.ChangeKind, item model.Item) bool

// Options configure a Listener.
type Options struct {
	Dialer Dialer
	// GroupID returns the group to follow. It is read on every connect so a
	// replaced placeholder id is picked up.
	GroupID func() string
	// URL maps a group id to its feed address.
	URL   func(groupID string) string
	Apply ApplyFunc
	// Origin is this client's id. Events carrying it are dropped.
	Origin     string
	Suppressor *Suppressor

	SubscribeTimeout time.Duration
	ReconnectBase    time.Duration
	Logger           *log.Logger

	// OnStatus fires on every state change, outside the lock.
	OnStatus func(Status)
}

// Listener runs the subscribe loop for one group.
type Listener struct {
	dialer     Dialer
	groupID    func() string
	url        func(string) string
	apply      ApplyFunc
	origin     string
	suppressor *Suppressor

	subscribeTimeout time.Duration
	reconnectBase    time.Duration
	logger           *log.Logger
	onStatus         func(Status)

	mu       sync.Mutex
	status   Status
	failures int
	applied  int
	dropped  int
}

// NewListener builds a Listener in the CONNECTING state.
func NewListener(opts Options) *Listener {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	sup := opts.Suppressor
	if sup == nil {
		sup = NewSuppressor(DefaultGrace)
	}
	subscribe := opts.SubscribeTimeout
	if subscribe <= 0 {
		subscribe = defaultSubscribeTimeout
	}
	base := opts.ReconnectBase
	if base <= 0 {
		base = defaultReconnectBase
	}
	return &Listener{
		dialer:           opts.Dialer,
		groupID:          opts.GroupID,
		url:              opts.URL,
		apply:            opts.Apply,
		origin:           opts.Origin,
		suppressor:       sup,
		subscribeTimeout: subscribe,
		reconnectBase:    base,
		logger:           logger,
		onStatus:         opts.OnStatus,
		status:           StatusConnecting,
	}
}

// Status returns the current connection state.
func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// NeedsReconnect reports whether the view should surface a reconnect
// indicator: the feed is closed or keeps failing.
func (l *Listener) NeedsReconnect() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status == StatusClosed || l.failures >= persistentFailures
}

// Stats returns how many remote changes were applied and dropped as echoes.
func (l *Listener) Stats() (applied, dropped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applied, l.dropped
}

// MarkLocalWrite arms echo suppression for a write about to be sent.
func (l *Listener) MarkLocalWrite(kind model.ChangeKind, item model.Item) {
	l.suppressor.Mark(kind, item)
}

// Run connects, subscribes and applies changes until ctx is cancelled, then
// leaves the listener CLOSED.
func (l *Listener) Run(ctx context.Context) error {
	if l.dialer == nil || l.url == nil || l.apply == nil {
		return fmt.Errorf("listener is missing a dialer, url or apply func")
	}
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			l.setStatus(StatusClosed)
			return nil
		}

		next := StatusChannelError
		switch {
		case errors.Is(err, ErrClosed):
			next = StatusClosed
		case model.IsTimeout(err):
			next = StatusTimedOut
		}
		l.fail(next)
		wait := l.reconnectDelay()
		l.logger.Warn("change feed interrupted", "status", next, "retry_in", wait, "err", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.setStatus(StatusClosed)
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to failure.
func (l *Listener) session(ctx context.Context) error {
	l.setStatus(StatusConnecting)

	groupID := ""
	if l.groupID != nil {
		groupID = l.groupID()
	}
	if groupID == "" {
		return fmt.Errorf("no group to follow")
	}

	dialCtx, cancel := context.WithTimeout(ctx, l.subscribeTimeout)
	conn, err := l.dialer.Dial(dialCtx, l.url(groupID))
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := l.awaitSubscribed(conn); err != nil {
		return err
	}
	l.subscribed()
	l.logger.Info("change feed subscribed", "group", groupID)

	for {
		data, err := conn.Read()
		if err != nil {
			return err
		}
		if err := l.handle(groupID, data); err != nil {
			return err
		}
	}
}

type subscribeTimeoutError struct{}

func (subscribeTimeoutError) Error() string { return "subscribe timed out" }
func (subscribeTimeoutError) Timeout() bool { return true }

func (l *Listener) awaitSubscribed(conn Conn) error {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := conn.Read()
		ch <- result{data, err}
	}()

	timer := time.NewTimer(l.subscribeTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		var msg gateway.FeedMessage
		if err := json.Unmarshal(r.data, &msg); err != nil {
			return fmt.Errorf("decode subscribe ack: %w", err)
		}
		switch msg.Type {
		case gateway.FeedSubscribed:
			return nil
		case gateway.FeedError:
			return fmt.Errorf("subscribe rejected: %s", msg.Error)
		}
		return fmt.Errorf("unexpected first frame %q", msg.Type)
	case <-timer.C:
		_ = conn.Close()
		return subscribeTimeoutError{}
	}
}

// handle applies one frame. An error frame ends the session.
func (l *Listener) handle(groupID string, data []byte) error {
	var msg gateway.FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Debug("undecodable feed frame dropped", "err", err)
		return nil
	}
	switch msg.Type {
	case gateway.FeedChange:
		l.handleChange(groupID, msg)
	case gateway.FeedError:
		return fmt.Errorf("feed error: %s", msg.Error)
	}
	return nil
}

func (l *Listener) handleChange(groupID string, msg gateway.FeedMessage) {
	kind, ok := model.ParseChangeKind(msg.Kind)
	if !ok {
		l.logger.Debug("unknown change kind dropped", "kind", msg.Kind)
		return
	}
	rec := msg.After
	if kind == model.ChangeDelete || rec == nil {
		if msg.Before != nil {
			rec = msg.Before
		}
	}
	if rec == nil {
		l.logger.Debug("change without record dropped", "kind", kind)
		return
	}
	if rec.GroupID != "" && rec.GroupID != groupID {
		return
	}
	item := rec.Item()
	if item.Name == "" {
		return
	}

	if l.isEcho(kind, item, msg.Origin) {
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
		l.logger.Debug("self echo dropped", "kind", kind, "item", item.Name)
		return
	}

	l.apply(kind, item)
	l.mu.Lock()
	l.applied++
	l.mu.Unlock()
}

// isEcho prefers the origin id when the feed carries one and falls back to
// the timing window otherwise.
func (l *Listener) isEcho(kind model.ChangeKind, item model.Item, origin string) bool {
	if origin != "" {
		return l.origin != "" && origin == l.origin
	}
	return l.suppressor.Suppress(kind, item)
}

func (l *Listener) setStatus(next Status) {
	l.mu.Lock()
	prev := l.status
	if prev == next || !canTransition(prev, next) {
		l.mu.Unlock()
		return
	}
	l.status = next
	l.mu.Unlock()
	l.notify(next)
}

func (l *Listener) subscribed() {
	l.mu.Lock()
	l.failures = 0
	l.mu.Unlock()
	l.setStatus(StatusSubscribed)
}

func (l *Listener) fail(next Status) {
	l.mu.Lock()
	l.failures++
	l.mu.Unlock()
	l.setStatus(next)
}

func (l *Listener) reconnectDelay() time.Duration {
	l.mu.Lock()
	n := l.failures
	l.mu.Unlock()
	delay := l.reconnectBase
	for i := 1; i < n && delay < maxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}

func (l *Listener) notify(s Status) {
	if l.onStatus != nil {
		l.onStatus(s)
	}
}
