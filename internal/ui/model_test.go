package ui

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/five82/mochiyoru/internal/board"
	"github.com/five82/mochiyoru/internal/model"
	"github.com/five82/mochiyoru/internal/prefs"
	"github.com/five82/mochiyoru/internal/state"
)

type fakeCore struct {
	items    []model.Item
	members  []string
	added    []string
	fields   []string
	removed  []string
	editing  bool
	addErr   error
	fieldErr error
}

func (f *fakeCore) AddItem(name string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, name)
	f.items = append(f.items, model.Item{Name: name})
	return nil
}

func (f *fakeCore) SetItemField(name string, field model.Field, value string) error {
	if f.fieldErr != nil {
		return f.fieldErr
	}
	f.fields = append(f.fields, name+"."+string(field)+"="+value)
	for i := range f.items {
		if f.items[i].Name != name {
			continue
		}
		if field == model.FieldAssignee {
			f.items[i].Assignee = value
		} else {
			f.items[i].Quantity = value
		}
	}
	return nil
}

func (f *fakeCore) RemoveItem(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeCore) AssigneeChoices() []string {
	return append([]string{"", model.AssigneeAll}, f.members...)
}

func (f *fakeCore) AddMember(name string) error {
	f.members = append(f.members, name)
	return nil
}

func (f *fakeCore) RemoveMember(string)                     {}
func (f *fakeCore) SetGroupName(string)                     {}
func (f *fakeCore) EditMembers()                            { f.editing = true }
func (f *fakeCore) RequestMemberEdit(context.Context) error { return nil }
func (f *fakeCore) SubmitGroup(context.Context) (model.GroupRef, error) {
	return model.GroupRef{ID: "g-1", Name: "Camp"}, nil
}

func (f *fakeCore) Snapshot(bool) board.State {
	return board.State{
		Group:   model.GroupRef{ID: "g-1", Name: "Camp", Members: f.members},
		Members: model.CloneStrings(f.members),
		Items:   model.CloneItems(f.items),
	}
}

func newTestModel(t *testing.T, core *fakeCore) (Model, *state.Store) {
	t.Helper()
	store := &state.Store{}
	store.SetBoard(core.Snapshot(false))
	m := New(Options{
		Board:     core,
		Store:     store,
		PrefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
		Logger:    log.New(io.Discard),
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model), store
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, cmd := m.Update(msg)
		m = next.(Model)
		m = drain(m, cmd)
	}
	return m
}

// drain runs snapshot refresh commands synchronously.
func drain(m Model, cmd tea.Cmd) Model {
	if cmd == nil {
		return m
	}
	if msg, ok := cmd().(snapshotMsg); ok {
		next, _ := m.Update(msg)
		return next.(Model)
	}
	return m
}

func TestAddItemThroughInput(t *testing.T) {
	core := &fakeCore{members: []string{"Aki"}}
	m, _ := newTestModel(t, core)

	m = press(t, m, "a", "T", "e", "n", "t", "enter")
	if !reflect.DeepEqual(core.added, []string{"Tent"}) {
		t.Fatalf("added = %v, want [Tent]", core.added)
	}
	if len(m.snapshot.Board.Items) != 1 {
		t.Fatalf("snapshot items = %v, want the new item", m.snapshot.Board.Items)
	}
	if m.inputMode != inputNone {
		t.Fatalf("inputMode = %v, want none after enter", m.inputMode)
	}
}

func TestAddItemValidationShowsFlash(t *testing.T) {
	core := &fakeCore{addErr: &model.DuplicateItemError{Name: "Tent"}}
	m, _ := newTestModel(t, core)

	m = press(t, m, "a", "T", "enter")
	if !m.flashErr || !strings.Contains(m.flash, "already") {
		t.Fatalf("flash = %q (err=%v), want duplicate message", m.flash, m.flashErr)
	}
}

func TestAssigneeAndQuantityKeys(t *testing.T) {
	core := &fakeCore{members: []string{"Aki", "Ben"}, items: []model.Item{{Name: "Tent"}}}
	m, _ := newTestModel(t, core)

	m = press(t, m, "c", "c", "+", "+")
	want := []string{
		"Tent.assignee=" + model.AssigneeAll,
		"Tent.assignee=Aki",
		"Tent.quantity=1",
		"Tent.quantity=2",
	}
	if !reflect.DeepEqual(core.fields, want) {
		t.Fatalf("fields = %v, want %v", core.fields, want)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	core := &fakeCore{items: []model.Item{{Name: "Tent"}, {Name: "Stove"}}}
	m, _ := newTestModel(t, core)

	m = press(t, m, "j", "d", "n")
	if len(core.removed) != 0 {
		t.Fatalf("removed = %v after declining, want none", core.removed)
	}
	m = press(t, m, "d", "y")
	if !reflect.DeepEqual(core.removed, []string{"Stove"}) {
		t.Fatalf("removed = %v, want [Stove]", core.removed)
	}
	if m.confirmDelete != "" {
		t.Fatalf("confirmDelete = %q, want cleared", m.confirmDelete)
	}
}

func TestSortToggleAndThemePersist(t *testing.T) {
	core := &fakeCore{
		members: []string{"Aki"},
		items:   []model.Item{{Name: "A"}, {Name: "B", Assignee: model.AssigneeAll}},
	}
	m, _ := newTestModel(t, core)

	m = press(t, m, "s", "T")
	if got := m.visibleItems(); got[0].Name != "B" {
		t.Fatalf("sorted first item = %q, want B", got[0].Name)
	}
	p, err := prefs.Load(m.prefsPath)
	if err != nil {
		t.Fatalf("prefs.Load: %v", err)
	}
	if !p.SortByAssignee || p.Theme != "Kanagawa" {
		t.Fatalf("prefs = %+v, want sorted Kanagawa", p)
	}
}

func TestMembersViewSubmits(t *testing.T) {
	core := &fakeCore{}
	m, _ := newTestModel(t, core)

	m = press(t, m, "m")
	if m.currentView != ViewMembers || !core.editing {
		t.Fatalf("view = %v editing = %v, want members view", m.currentView, core.editing)
	}
	m = press(t, m, "a", "A", "k", "i", "enter")
	if !reflect.DeepEqual(core.members, []string{"Aki"}) {
		t.Fatalf("members = %v, want [Aki]", core.members)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("S")})
	m = next.(Model)
	if !m.submitting || cmd == nil {
		t.Fatalf("submitting = %v, want a submit command", m.submitting)
	}
	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.submitting || m.currentView != ViewItems {
		t.Fatalf("after submit view = %v submitting = %v, want items view", m.currentView, m.submitting)
	}
}

func TestCycleAssignee(t *testing.T) {
	choices := []string{"", model.AssigneeAll, "Aki"}
	tests := []struct {
		current string
		dir     int
		want    string
	}{
		{"", 1, model.AssigneeAll},
		{"Aki", 1, ""},
		{"", -1, "Aki"},
		{"Gone", 1, ""},
	}
	for _, tt := range tests {
		if got := cycleAssignee(choices, tt.current, tt.dir); got != tt.want {
			t.Errorf("cycleAssignee(%q, %d) = %q, want %q", tt.current, tt.dir, got, tt.want)
		}
	}
}

func TestQuantityStep(t *testing.T) {
	tests := []struct {
		current string
		delta   int
		want    string
	}{
		{"", 1, "1"},
		{"", -1, ""},
		{"1", -1, "1"},
		{"9", 1, "10"},
		{"10", 1, "10"},
		{"2 packs", 1, "2 packs"},
	}
	for _, tt := range tests {
		if got := quantityStep(tt.current, tt.delta); got != tt.want {
			t.Errorf("quantityStep(%q, %d) = %q, want %q", tt.current, tt.delta, got, tt.want)
		}
	}
}

func TestDescribeError(t *testing.T) {
	offline := &model.SyncError{Op: "create group", Err: board.ErrOffline}
	if got := describeError(offline); !strings.Contains(got, "kept locally") {
		t.Fatalf("describeError(offline) = %q", got)
	}
	ve := &model.ValidationError{Field: "quantity", Reason: "quantity needs a number"}
	if got := describeError(ve); got != "quantity needs a number" {
		t.Fatalf("describeError(validation) = %q", got)
	}
	if got := describeError(errors.New("boom")); got != "boom" {
		t.Fatalf("describeError(plain) = %q", got)
	}
}

func TestThemeCycle(t *testing.T) {
	names := ThemeNames()
	if !reflect.DeepEqual(names, []string{"Nightfox", "Kanagawa", "Slate"}) {
		t.Fatalf("ThemeNames() = %v", names)
	}
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q, want Nightfox", got)
	}
	if got := GetTheme("missing").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(missing) = %q, want Nightfox", got)
	}
}

func TestTruncateCountsWideRunes(t *testing.T) {
	if got := truncate("テント一式", 6); got != "テント…" && got != "テン…" {
		t.Fatalf("truncate(wide) = %q", got)
	}
	if got := cell("Tent", 6); got != "Tent  " {
		t.Fatalf("cell = %q, want padded", got)
	}
}

func TestViewRendersWithoutPanics(t *testing.T) {
	core := &fakeCore{members: []string{"Aki"}, items: []model.Item{{Name: "Tent", Assignee: "Aki", Quantity: "1"}}}
	m, _ := newTestModel(t, core)
	for _, keys := range [][]string{nil, {"m"}, {"l"}, {"?"}} {
		mm := press(t, m, keys...)
		if out := mm.View(); out == "" {
			t.Fatalf("View() after %v is empty", keys)
		}
	}
	if out := m.View(); !strings.Contains(out, "Tent") {
		t.Fatalf("items view missing Tent:\n%s", out)
	}
}
