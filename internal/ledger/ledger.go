// Package ledger keeps the in-memory list of items for the active group and
// persists local edits optimistically through a Remote.
package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/mochiyoru/internal/model"
)

// DefaultDebounce coalesces rapid field edits on one item.
const DefaultDebounce = 500 * time.Millisecond

// Remote persists item writes. *gateway.Client satisfies it.
type Remote interface {
	UpsertItem(ctx context.Context, groupID string, item model.Item) error
	DeleteItem(ctx context.Context, groupID, name string) error
}

// Options configure a Ledger.
type Options struct {
	Context  context.Context
	GroupID  string
	Remote   Remote
	Debounce time.Duration
	Logger   *log.Logger

	// OnChange fires after every local or remote mutation, outside the lock.
	OnChange func()
	// OnSyncError receives *model.SyncError values for failed writes.
	OnSyncError func(error)
	// BeforeWrite runs right before a write leaves for the store, so the live
	// listener can recognise its echo.
	BeforeWrite func(kind model.ChangeKind, item model.Item)
}

// Ledger is the sole owner of item state in memory. All methods are safe for
// concurrent use; writes to different names never wait on each other.
type Ledger struct {
	ctx    context.Context
	remote Remote
	logger *log.Logger

	onChange    func()
	onSyncError func(error)
	beforeWrite func(model.ChangeKind, model.Item)

	mu       sync.Mutex
	groupID  string
	items    []model.Item
	index    map[string]int
	pending  map[string]model.Item // debounced values not yet sent
	inflight map[string]int        // queued or running writes per name
	gen      map[string]uint64     // bumped when a name is added, removed or rolled back
	seq      uint64                // write sequence, advanced as writes settle
	written  map[string]uint64     // seq at which each name's last write settled

	debounce *debouncer
	lanes    *lanes
}

// New builds an empty ledger.
func New(opts Options) *Ledger {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	delay := opts.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		ctx:         ctx,
		remote:      opts.Remote,
		logger:      logger,
		onChange:    opts.OnChange,
		onSyncError: opts.OnSyncError,
		beforeWrite: opts.BeforeWrite,
		groupID:     opts.GroupID,
		index:       make(map[string]int),
		pending:     make(map[string]model.Item),
		inflight:    make(map[string]int),
		gen:         make(map[string]uint64),
		written:     make(map[string]uint64),
		debounce:    newDebouncer(delay),
		lanes:       newLanes(),
	}
}

// SetGroupID retargets future writes, e.g. once a placeholder id is replaced.
func (l *Ledger) SetGroupID(id string) {
	l.mu.Lock()
	l.groupID = id
	l.mu.Unlock()
}

// GroupID returns the id writes are sent to.
func (l *Ledger) GroupID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groupID
}

// Replace loads the initial snapshot from the store. Duplicate names keep
// their first occurrence.
func (l *Ledger) Replace(items []model.Item) {
	l.mu.Lock()
	l.items = l.items[:0]
	l.index = make(map[string]int, len(items))
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		if _, dup := l.index[it.Name]; dup {
			continue
		}
		l.index[it.Name] = len(l.items)
		l.items = append(l.items, it)
	}
	l.mu.Unlock()
	l.changed()
}

// AddItem appends an unassigned item and persists it. When the write fails
// the item is removed again and a SyncError is reported.
func (l *Ledger) AddItem(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &model.ValidationError{Field: "item", Reason: "name is required"}
	}

	l.mu.Lock()
	if _, ok := l.index[name]; ok {
		l.mu.Unlock()
		return &model.DuplicateItemError{Name: name}
	}
	item := model.Item{Name: name}
	l.index[name] = len(l.items)
	l.items = append(l.items, item)
	l.inflight[name]++
	l.gen[name]++
	groupID := l.groupID
	l.mu.Unlock()

	l.changed()
	l.lanes.run(name, func() { l.persistAdd(groupID, item) })
	return nil
}

func (l *Ledger) persistAdd(groupID string, item model.Item) {
	defer l.settle(item.Name)

	l.announce(model.ChangeInsert, item)
	err := l.upsert(groupID, item)
	if err == nil {
		return
	}

	l.mu.Lock()
	_, present := l.index[item.Name]
	if present {
		l.removeLocked(item.Name)
		delete(l.pending, item.Name)
	}
	// Updates queued behind the add must not recreate the item remotely.
	l.gen[item.Name]++
	l.mu.Unlock()
	l.debounce.cancel(item.Name)

	l.logger.Warn("item add failed, rolled back", "item", item.Name, "err", err)
	if present {
		l.changed()
	}
	l.reportSync("add", item.Name, err)
}

// SetField edits assignee or quantity in place and schedules a debounced
// write carrying the latest values. A failed write keeps the local value.
func (l *Ledger) SetField(name string, field model.Field, value string) error {
	l.mu.Lock()
	idx, ok := l.index[name]
	if !ok {
		l.mu.Unlock()
		return &model.ValidationError{Field: "item", Reason: "unknown item: " + name}
	}
	switch field {
	case model.FieldAssignee:
		l.items[idx].Assignee = model.NormalizeAssignee(value)
	case model.FieldQuantity:
		l.items[idx].Quantity = strings.TrimSpace(value)
	default:
		l.mu.Unlock()
		return &model.ValidationError{Field: "field", Reason: "unknown field: " + string(field)}
	}
	l.pending[name] = l.items[idx]
	l.mu.Unlock()

	l.changed()
	l.debounce.schedule(name, func() { l.flushField(name) })
	return nil
}

func (l *Ledger) flushField(name string) {
	l.mu.Lock()
	item, ok := l.pending[name]
	delete(l.pending, name)
	if _, present := l.index[name]; !ok || !present {
		l.mu.Unlock()
		return
	}
	l.inflight[name]++
	groupID := l.groupID
	gen := l.gen[name]
	l.mu.Unlock()

	l.lanes.run(name, func() {
		defer l.settle(name)
		if !l.current(name, gen) {
			l.logger.Debug("item update dropped, item no longer present", "item", name)
			return
		}
		l.announce(model.ChangeUpdate, item)
		if err := l.upsert(groupID, item); err != nil {
			l.logger.Warn("item update failed", "item", name, "err", err)
			l.reportSync("update", name, err)
		}
	})
}

// RemoveItem deletes the item locally and remotely. When the delete fails the
// item is restored at its previous position. Removing an unknown name is a
// no-op.
func (l *Ledger) RemoveItem(name string) error {
	l.mu.Lock()
	idx, ok := l.index[name]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	item := l.items[idx]
	l.removeLocked(name)
	delete(l.pending, name)
	l.inflight[name]++
	l.gen[name]++
	groupID := l.groupID
	l.mu.Unlock()

	l.debounce.cancel(name)
	l.changed()
	l.lanes.run(name, func() { l.persistDelete(groupID, idx, item) })
	return nil
}

func (l *Ledger) persistDelete(groupID string, idx int, item model.Item) {
	defer l.settle(item.Name)

	l.announce(model.ChangeDelete, item)
	var err error
	if l.remote != nil {
		err = l.remote.DeleteItem(l.ctx, groupID, item.Name)
	}
	if err == nil {
		return
	}

	l.mu.Lock()
	_, present := l.index[item.Name]
	if !present {
		l.insertLocked(idx, item)
	}
	l.mu.Unlock()

	l.logger.Warn("item delete failed, restored", "item", item.Name, "err", err)
	if !present {
		l.changed()
	}
	l.reportSync("delete", item.Name, err)
}

// ApplyRemote merges an already-committed change from the store. It never
// issues a write of its own. It reports whether local state changed.
func (l *Ledger) ApplyRemote(kind model.ChangeKind, item model.Item) bool {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return false
	}

	l.mu.Lock()
	changed := l.applyLocked(kind, item)
	l.mu.Unlock()

	if kind == model.ChangeDelete {
		l.debounce.cancel(item.Name)
	}
	if changed {
		l.changed()
	}
	return changed
}

func (l *Ledger) applyLocked(kind model.ChangeKind, item model.Item) bool {
	idx, present := l.index[item.Name]
	switch kind {
	case model.ChangeInsert:
		if present {
			return false
		}
		l.index[item.Name] = len(l.items)
		l.items = append(l.items, item)
		return true
	case model.ChangeUpdate:
		if !present {
			l.logger.Debug("remote update for unknown item ignored", "item", item.Name)
			return false
		}
		if _, editing := l.pending[item.Name]; editing {
			// The debounced local write lands later and wins at the store.
			l.logger.Debug("remote update skipped during local edit", "item", item.Name)
			return false
		}
		cur := l.items[idx]
		if cur.Assignee == item.Assignee && cur.Quantity == item.Quantity {
			return false
		}
		l.items[idx].Assignee = item.Assignee
		l.items[idx].Quantity = item.Quantity
		return true
	case model.ChangeDelete:
		if !present {
			return false
		}
		l.removeLocked(item.Name)
		delete(l.pending, item.Name)
		l.gen[item.Name]++
		return true
	}
	l.logger.Debug("unknown change kind ignored", "kind", kind)
	return false
}

// Mark returns the current write sequence. Capture it before fetching a list
// that will be passed to Reconcile.
func (l *Ledger) Mark() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Reconcile folds a list fetched after Mark returned since into the ledger
// through the same path as ApplyRemote. Names with local writes outstanding,
// or whose last write settled after since, are left alone: the list may
// predate that write.
func (l *Ledger) Reconcile(remote []model.Item, since uint64) bool {
	seen := make(map[string]struct{}, len(remote))
	for _, it := range remote {
		seen[strings.TrimSpace(it.Name)] = struct{}{}
	}

	l.mu.Lock()
	changed := false
	for _, it := range model.CloneItems(l.items) {
		if _, ok := seen[it.Name]; ok || l.busyLocked(it.Name) || l.written[it.Name] > since {
			continue
		}
		changed = l.applyLocked(model.ChangeDelete, it) || changed
	}
	for _, it := range remote {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" || l.busyLocked(it.Name) || l.written[it.Name] > since {
			continue
		}
		kind := model.ChangeUpdate
		if _, ok := l.index[it.Name]; !ok {
			kind = model.ChangeInsert
		}
		changed = l.applyLocked(kind, it) || changed
	}
	l.mu.Unlock()

	if changed {
		l.changed()
	}
	return changed
}

// Snapshot returns the items in canonical order, or sorted by assignee for
// display. The canonical order is never changed by sorting.
func (l *Ledger) Snapshot(sorted bool) []model.Item {
	l.mu.Lock()
	items := model.CloneItems(l.items)
	l.mu.Unlock()
	if sorted {
		SortByAssignee(items)
	}
	return items
}

// Get returns the item with the given name.
func (l *Ledger) Get(name string) (model.Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.index[name]
	if !ok {
		return model.Item{}, false
	}
	return l.items[idx], true
}

// Pending counts names with a debounced or in-flight write.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make(map[string]struct{}, len(l.pending)+len(l.inflight))
	for name := range l.pending {
		names[name] = struct{}{}
	}
	for name, n := range l.inflight {
		if n > 0 {
			names[name] = struct{}{}
		}
	}
	return len(names)
}

// Flush sends every debounced edit now and waits for all writes to settle.
func (l *Ledger) Flush() {
	l.debounce.flushAll()
	l.lanes.wait()
}

func (l *Ledger) busyLocked(name string) bool {
	if _, ok := l.pending[name]; ok {
		return true
	}
	return l.inflight[name] > 0
}

func (l *Ledger) removeLocked(name string) {
	idx, ok := l.index[name]
	if !ok {
		return
	}
	l.items = append(l.items[:idx:idx], l.items[idx+1:]...)
	l.reindexLocked()
}

func (l *Ledger) insertLocked(idx int, item model.Item) {
	if idx < 0 || idx > len(l.items) {
		idx = len(l.items)
	}
	l.items = append(l.items[:idx:idx], append([]model.Item{item}, l.items[idx:]...)...)
	l.reindexLocked()
}

func (l *Ledger) reindexLocked() {
	l.index = make(map[string]int, len(l.items))
	for i, it := range l.items {
		l.index[it.Name] = i
	}
}

func (l *Ledger) settle(name string) {
	l.mu.Lock()
	if l.inflight[name]--; l.inflight[name] <= 0 {
		delete(l.inflight, name)
	}
	l.seq++
	l.written[name] = l.seq
	l.mu.Unlock()
}

// current reports whether name is still listed under generation gen.
func (l *Ledger) current(name string, gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, present := l.index[name]
	return present && l.gen[name] == gen
}

func (l *Ledger) upsert(groupID string, item model.Item) error {
	if l.remote == nil {
		return nil
	}
	return l.remote.UpsertItem(l.ctx, groupID, item)
}

func (l *Ledger) announce(kind model.ChangeKind, item model.Item) {
	if l.beforeWrite != nil {
		l.beforeWrite(kind, item)
	}
}

func (l *Ledger) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}

func (l *Ledger) reportSync(op, name string, err error) {
	if l.onSyncError != nil {
		l.onSyncError(&model.SyncError{Op: op, Item: name, Err: err})
	}
}
