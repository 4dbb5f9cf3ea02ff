// Package board is the core-facing API of the client. It composes the member
// roster, the item ledger, the identity resolver, the local cache and the
// live change listener for one active group.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/five82/mochiyoru/internal/cache"
	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/identity"
	"github.com/five82/mochiyoru/internal/ledger"
	"github.com/five82/mochiyoru/internal/live"
	"github.com/five82/mochiyoru/internal/model"
	"github.com/five82/mochiyoru/internal/roster"
)

const cacheWriteTimeout = 2 * time.Second

// ErrOffline is wrapped into the SyncError returned when a group could only
// be kept under a placeholder id.
var ErrOffline = errors.New("storage unreachable; group kept locally")

// Options configure a Board.
type Options struct {
	Context context.Context
	Store   gateway.Store
	Cache   cache.Cache
	Locator identity.Locator
	Logger  *log.Logger

	Debounce time.Duration

	// Dialer enables the live change feed when set.
	Dialer  live.Dialer
	FeedURL func(groupID string) string
	Origin  string
	Grace   live.Grace

	// NewPlaceholderID overrides offline id generation in tests.
	NewPlaceholderID func() string
}

// State is a point-in-time view of the board for rendering.
type State struct {
	Group          model.GroupRef
	Members        []string
	Items          []model.Item
	Pending        int
	EditingMembers bool
	Feed           live.Status
	FeedEnabled    bool
	NeedsReconnect bool
}

// Board is safe for concurrent use. State-change and sync-error callbacks
// may fire from background goroutines.
type Board struct {
	ctx      context.Context
	store    gateway.Store
	cache    cache.Cache
	logger   *log.Logger
	resolver *identity.Resolver
	roster   *roster.Roster
	ledger   *ledger.Ledger
	listener *live.Listener

	mu        sync.RWMutex
	group     model.GroupRef
	editing   bool
	onChange  []func()
	onSyncErr []func(error)
}

// New builds a Board. Call Open before using it.
func New(opts Options) *Board {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	b := &Board{
		ctx:    ctx,
		store:  opts.Store,
		cache:  opts.Cache,
		logger: logger,
	}
	b.resolver = identity.NewResolver(identity.Options{
		Store:            opts.Store,
		Cache:            opts.Cache,
		Locator:          opts.Locator,
		Logger:           logger,
		NewPlaceholderID: opts.NewPlaceholderID,
	})
	b.roster = roster.New(nil, roster.WithPersist(b.persistMembers))
	b.ledger = ledger.New(ledger.Options{
		Context:     ctx,
		Remote:      opts.Store,
		Debounce:    opts.Debounce,
		Logger:      logger,
		OnChange:    b.emitChange,
		OnSyncError: b.emitSyncError,
		BeforeWrite: b.beforeWrite,
	})
	if opts.Dialer != nil && opts.FeedURL != nil {
		b.listener = live.NewListener(live.Options{
			Dialer:     opts.Dialer,
			GroupID:    b.feedGroupID,
			URL:        opts.FeedURL,
			Apply:      b.ledger.ApplyRemote,
			Origin:     opts.Origin,
			Suppressor: live.NewSuppressor(opts.Grace),
			Logger:     logger,
			OnStatus:   func(live.Status) { b.emitChange() },
		})
	}
	return b
}

// Open resolves the active group and loads its members and items. When src
// carries no cached snapshot the injected cache is consulted. A pending
// member edit-mode flag is consumed here.
func (b *Board) Open(ctx context.Context, src identity.Sources) error {
	if src.Cached == nil && b.cache != nil {
		cached, ok, err := b.cache.Load(ctx)
		if err != nil {
			b.logger.Warn("cached group unreadable, ignoring", "err", err)
		}
		if ok {
			src.Cached = &cached
		}
	}

	editing := false
	if b.cache != nil {
		mode, err := b.cache.ConsumeEditMode(ctx)
		if err != nil {
			b.logger.Warn("edit mode flag unreadable", "err", err)
		}
		editing = mode == cache.EditModeMembers
	}

	var (
		ref      model.GroupRef
		items    []model.Item
		itemsErr error
	)
	choice := identity.Pick(src)
	if choice.ID != "" && !choice.Placeholder {
		// The id is already known, so items load alongside resolution.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			ref, err = b.resolver.Resolve(gctx, src)
			return err
		})
		g.Go(func() error {
			items, itemsErr = b.store.ListItems(gctx, choice.ID)
			return nil
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("resolve group: %w", err)
		}
	} else {
		var err error
		ref, err = b.resolver.Resolve(ctx, src)
		if err != nil {
			return fmt.Errorf("resolve group: %w", err)
		}
		if ref.Confirmed() {
			items, itemsErr = b.store.ListItems(ctx, ref.ID)
		}
	}

	b.mu.Lock()
	b.group = ref.Clone()
	b.editing = editing || len(ref.Members) == 0
	b.mu.Unlock()

	b.roster.Replace(ref.Members)
	b.ledger.SetGroupID(ref.ID)
	if itemsErr != nil {
		b.logger.Warn("item load failed", "group", ref.ID, "err", itemsErr)
		b.emitSyncError(&model.SyncError{Op: "load", Err: itemsErr})
	}
	b.ledger.Replace(items)
	b.logger.Info("group opened", "group", ref.ID, "placeholder", ref.Placeholder, "members", len(ref.Members), "items", len(items))
	return nil
}

// Listen runs the live change feed until ctx is cancelled. It returns
// immediately when the feed is disabled.
func (b *Board) Listen(ctx context.Context) error {
	if b.listener == nil {
		return nil
	}
	return b.listener.Run(ctx)
}

// Subscribed reports whether the live feed is currently delivering changes.
func (b *Board) Subscribed() bool {
	return b.listener != nil && b.listener.Status() == live.StatusSubscribed
}

// Refresh re-reads group metadata and items from the store and folds them in.
// Items with local writes outstanding, or written while the fetch was under
// way, are left alone.
func (b *Board) Refresh(ctx context.Context) error {
	ref := b.Group()
	if !ref.Confirmed() {
		return nil
	}

	var (
		group model.Group
		items []model.Item
	)
	mark := b.ledger.Mark()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		group, err = b.store.FetchGroup(gctx, ref.ID)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = b.store.ListItems(gctx, ref.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	b.mu.Lock()
	metaChanged := false
	if !b.editing {
		if name := strings.TrimSpace(group.Name); name != "" && name != b.group.Name {
			b.group.Name = name
			metaChanged = true
		}
		if !slices.Equal(group.Members, b.group.Members) {
			b.group.Members = model.CloneStrings(group.Members)
			metaChanged = true
		}
	}
	members := model.CloneStrings(b.group.Members)
	b.mu.Unlock()

	if metaChanged {
		b.roster.Replace(members)
		b.emitChange()
	}
	b.ledger.Reconcile(items, mark)
	return nil
}

// Group returns the active group identity.
func (b *Board) Group() model.GroupRef {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.group.Clone()
}

// SetGroupName edits the name locally. It is sent with SubmitGroup.
func (b *Board) SetGroupName(name string) {
	b.mu.Lock()
	b.group.Name = strings.TrimSpace(name)
	b.mu.Unlock()
	b.emitChange()
}

// EditingMembers reports whether the member editor should be shown.
func (b *Board) EditingMembers() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.editing
}

// EditMembers switches to the member editor for the current session.
func (b *Board) EditMembers() {
	b.mu.Lock()
	b.editing = true
	b.mu.Unlock()
	b.emitChange()
}

// RequestMemberEdit flags the next load to open the member editor.
func (b *Board) RequestMemberEdit(ctx context.Context) error {
	if b.cache == nil {
		return nil
	}
	return b.cache.SetEditMode(ctx, cache.EditModeMembers)
}

// AddMember appends a member to the roster.
func (b *Board) AddMember(name string) error {
	if err := b.roster.Add(name); err != nil {
		return err
	}
	b.emitChange()
	return nil
}

// RemoveMember drops a member from the roster. Absent names are ignored.
func (b *Board) RemoveMember(name string) {
	b.roster.Remove(name)
	b.emitChange()
}

// ListMembers returns the roster in insertion order.
func (b *Board) ListMembers() []string {
	return b.roster.List()
}

// SubmitGroup validates the name and roster, then creates the group when it
// has no confirmed id or updates it otherwise. Validation failures issue no
// network call. A write failure is returned as *model.SyncError.
func (b *Board) SubmitGroup(ctx context.Context) (model.GroupRef, error) {
	ref := b.Group()
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.Name == "" {
		return ref, &model.ValidationError{Field: "groupName", Reason: "group name is required"}
	}
	if err := b.roster.Validate(model.MaxMembers); err != nil {
		return ref, err
	}
	ref.Members = b.roster.List()

	if !ref.Confirmed() {
		created, err := b.resolver.Create(ctx, ref)
		if err != nil {
			return ref, &model.SyncError{Op: "create group", Err: err}
		}
		b.adopt(created)
		if created.Placeholder {
			return created, &model.SyncError{Op: "create group", Err: ErrOffline}
		}
		return created, nil
	}

	group := model.Group{ID: ref.ID, Name: ref.Name, Members: ref.Members}
	if err := b.store.UpdateGroup(ctx, group); err != nil {
		return ref, &model.SyncError{Op: "update group", Err: err}
	}
	b.adopt(ref)
	b.saveCache(ref)
	return ref, nil
}

func (b *Board) adopt(ref model.GroupRef) {
	b.mu.Lock()
	b.group = ref.Clone()
	b.editing = false
	b.mu.Unlock()
	b.ledger.SetGroupID(ref.ID)
	b.emitChange()
}

// AddItem appends an unassigned item and persists it in the background.
func (b *Board) AddItem(name string) error {
	return b.ledger.AddItem(name)
}

// SetItemField validates and applies an assignee or quantity edit. The
// assignee must be empty, everyone, or a roster member; a non-empty quantity
// must contain a digit.
func (b *Board) SetItemField(name string, field model.Field, value string) error {
	switch field {
	case model.FieldAssignee:
		v := model.NormalizeAssignee(value)
		if v != "" && v != model.AssigneeAll && !b.roster.Contains(v) {
			return &model.ValidationError{Field: "assignee", Reason: "not a member: " + v}
		}
		value = v
	case model.FieldQuantity:
		if err := model.ValidateQuantity(value); err != nil {
			return err
		}
	default:
		return &model.ValidationError{Field: "field", Reason: "unknown field: " + string(field)}
	}
	return b.ledger.SetField(name, field, value)
}

// RemoveItem deletes an item. Confirmation is the caller's job.
func (b *Board) RemoveItem(name string) error {
	return b.ledger.RemoveItem(name)
}

// ListItems returns the items in canonical order, or sorted by assignee.
func (b *Board) ListItems(sorted bool) []model.Item {
	return b.ledger.Snapshot(sorted)
}

// AssigneeChoices lists the values SetItemField accepts for an assignee, in
// menu order.
func (b *Board) AssigneeChoices() []string {
	return append([]string{"", model.AssigneeAll}, b.roster.List()...)
}

// Snapshot captures the board for rendering.
func (b *Board) Snapshot(sorted bool) State {
	st := State{
		Group:   b.Group(),
		Members: b.roster.List(),
		Items:   b.ledger.Snapshot(sorted),
		Pending: b.ledger.Pending(),
	}
	st.EditingMembers = b.EditingMembers()
	if b.listener != nil {
		st.FeedEnabled = true
		st.Feed = b.listener.Status()
		st.NeedsReconnect = b.listener.NeedsReconnect()
	}
	return st
}

// OnStateChanged registers a re-render trigger.
func (b *Board) OnStateChanged(fn func()) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.onChange = append(b.onChange, fn)
	b.mu.Unlock()
}

// OnSyncError registers a receiver for background write failures.
func (b *Board) OnSyncError(fn func(error)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.onSyncErr = append(b.onSyncErr, fn)
	b.mu.Unlock()
}

// Close sends debounced edits immediately and waits for in-flight writes.
func (b *Board) Close() {
	b.ledger.Flush()
}

func (b *Board) feedGroupID() string {
	ref := b.Group()
	if !ref.Confirmed() {
		return ""
	}
	return ref.ID
}

func (b *Board) beforeWrite(kind model.ChangeKind, item model.Item) {
	if b.listener != nil {
		b.listener.MarkLocalWrite(kind, item)
	}
}

func (b *Board) persistMembers(members []string) {
	b.mu.Lock()
	b.group.Members = model.CloneStrings(members)
	ref := b.group.Clone()
	b.mu.Unlock()
	if ref.ID == "" {
		return
	}
	b.saveCache(ref)
}

func (b *Board) saveCache(ref model.GroupRef) {
	if b.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, cacheWriteTimeout)
	defer cancel()
	if err := b.cache.Save(ctx, ref); err != nil {
		b.logger.Warn("cache save failed", "err", err)
	}
}

func (b *Board) emitChange() {
	b.mu.RLock()
	fns := append([]func(){}, b.onChange...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *Board) emitSyncError(err error) {
	b.mu.RLock()
	fns := append([]func(error){}, b.onSyncErr...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}
