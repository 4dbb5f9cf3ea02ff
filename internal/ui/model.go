package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/five82/mochiyoru/internal/board"
	"github.com/five82/mochiyoru/internal/logtail"
	"github.com/five82/mochiyoru/internal/model"
	"github.com/five82/mochiyoru/internal/prefs"
	"github.com/five82/mochiyoru/internal/state"
)

// Core is the part of *board.Board the UI drives.
type Core interface {
	AddItem(name string) error
	SetItemField(name string, field model.Field, value string) error
	RemoveItem(name string) error
	AssigneeChoices() []string

	AddMember(name string) error
	RemoveMember(name string)
	SetGroupName(name string)
	EditMembers()
	RequestMemberEdit(ctx context.Context) error
	SubmitGroup(ctx context.Context) (model.GroupRef, error)

	Snapshot(sorted bool) board.State
}

var _ Core = (*board.Board)(nil)

// View represents the current active view.
type View int

const (
	ViewItems View = iota
	ViewMembers
	ViewActivity
)

// inputMode says what the text input is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputItemName
	inputQuantity
	inputMemberName
	inputGroupName
)

const (
	defaultTick     = time.Second
	activityLines   = 200
	submitTimeout   = 15 * time.Second
	flashDuration   = 5 * time.Second
	quantityMaxStep = 10
)

// Options configures the UI.
type Options struct {
	Context        context.Context
	Board          Core
	Store          *state.Store
	ThemeName      string
	SortByAssignee bool
	PrefsPath      string
	ShareURL       func() string
	LogPath        string
	Logger         *log.Logger
	Tick           time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	board     Core
	store     *state.Store
	prefsPath string
	shareURL  func() string
	logPath   string
	logger    *log.Logger
	tick      time.Duration
	keys      keyMap

	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	snapshot state.Snapshot
	sorted   bool

	itemCursor   int
	memberCursor int

	input     textinput.Model
	inputMode inputMode
	// inputTarget is the item a quantity edit applies to.
	inputTarget string

	// confirmDelete holds the item awaiting a yes/no answer.
	confirmDelete string
	submitting    bool

	flash     string
	flashErr  bool
	flashedAt time.Time

	activity     viewport.Model
	activityLogs []logtail.Entry
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	shareURL := opts.ShareURL
	if shareURL == nil {
		shareURL = func() string { return "" }
	}

	in := textinput.New()
	in.CharLimit = 64

	m := Model{
		ctx:         ctx,
		board:       opts.Board,
		store:       opts.Store,
		prefsPath:   prefsPath,
		shareURL:    shareURL,
		logPath:     opts.LogPath,
		logger:      logger,
		tick:        tick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.ThemeName),
		currentView: ViewItems,
		sorted:      opts.SortByAssignee,
		input:       in,
	}
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
		if m.snapshot.Board.EditingMembers {
			m.currentView = ViewMembers
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.activity = viewport.New(msg.Width, m.bodyHeight())
		}
		m.ready = true
		m.activity.Width = msg.Width
		m.activity.Height = m.bodyHeight()
		m.updateActivity()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.applySnapshot(state.Snapshot(msg))
		return m, nil

	case activityMsg:
		m.activityLogs = msg
		m.updateActivity()
		return m, nil

	case submitMsg:
		m.submitting = false
		if msg.err != nil {
			m.setFlash(describeError(msg.err), true)
			return m, m.refreshSnapshot()
		}
		m.setFlash(fmt.Sprintf("Saved %s", msg.ref.Name), false)
		m.currentView = ViewItems
		return m, m.refreshSnapshot()
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.inputMode != inputNone {
		return m.handleInputKey(msg)
	}
	if m.confirmDelete != "" {
		return m.handleConfirmKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.currentView = (m.currentView + 1) % 3
		if m.currentView == ViewMembers {
			m.board.EditMembers()
		}
		return m, m.enterView()
	case key.Matches(msg, m.keys.ViewItems), key.Matches(msg, m.keys.Escape):
		m.currentView = ViewItems
		return m, nil
	case key.Matches(msg, m.keys.ViewMembers):
		m.currentView = ViewMembers
		m.board.EditMembers()
		return m, m.refreshSnapshot()
	case key.Matches(msg, m.keys.ViewActivity):
		m.currentView = ViewActivity
		return m, m.loadActivity()
	}

	switch m.currentView {
	case ViewItems:
		return m.handleItemsKey(msg)
	case ViewMembers:
		return m.handleMembersKey(msg)
	case ViewActivity:
		var cmd tea.Cmd
		m.activity, cmd = m.activity.Update(msg)
		return m, cmd
	}
	return m, nil
}

// startInput focuses the text input for mode.
func (m *Model) startInput(mode inputMode, prompt, value string) tea.Cmd {
	m.inputMode = mode
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.stopInput()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		value := m.input.Value()
		mode, target := m.inputMode, m.inputTarget
		m.stopInput()
		return m.commitInput(mode, target, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) stopInput() {
	m.inputMode = inputNone
	m.inputTarget = ""
	m.input.Blur()
	m.input.SetValue("")
}

func (m Model) commitInput(mode inputMode, target, value string) (tea.Model, tea.Cmd) {
	var err error
	switch mode {
	case inputItemName:
		err = m.board.AddItem(value)
		if err == nil {
			m.setFlash("Added "+value, false)
		}
	case inputQuantity:
		err = m.board.SetItemField(target, model.FieldQuantity, value)
	case inputMemberName:
		err = m.board.AddMember(value)
	case inputGroupName:
		m.board.SetGroupName(value)
	}
	if err != nil {
		m.setFlash(describeError(err), true)
	}
	return m, m.refreshSnapshot()
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewActivity {
		cmds = append(cmds, m.loadActivity())
	}
	if m.flash != "" && time.Since(m.flashedAt) > flashDuration {
		m.flash = ""
	}
	cmds = append(cmds, tickCmd(m.tick))
	return m, tea.Batch(cmds...)
}

func (m *Model) applySnapshot(snap state.Snapshot) {
	m.snapshot = snap
	m.itemCursor = clampCursor(m.itemCursor, len(snap.Board.Items))
	m.memberCursor = clampCursor(m.memberCursor, len(snap.Board.Members))
	m.updateActivity()
}

func (m Model) enterView() tea.Cmd {
	if m.currentView == ViewActivity {
		return m.loadActivity()
	}
	return m.refreshSnapshot()
}

func (m *Model) setFlash(msg string, isErr bool) {
	m.flash = msg
	m.flashErr = isErr
	m.flashedAt = time.Now()
}

func (m Model) savePrefs() {
	p := prefs.Prefs{Theme: m.theme.Name, SortByAssignee: m.sorted}
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.logger.Warn("save prefs failed", "err", err)
	}
}

// refreshSnapshot re-reads the board directly so a local edit shows at once,
// without waiting for the next tick.
func (m Model) refreshSnapshot() tea.Cmd {
	if m.store == nil || m.board == nil {
		return nil
	}
	b, store := m.board, m.store
	return func() tea.Msg {
		store.SetBoard(b.Snapshot(false))
		return snapshotMsg(store.Snapshot())
	}
}

func (m Model) bodyHeight() int {
	// header, command bar, status line
	h := m.height - 4
	if h < 3 {
		h = 3
	}
	return h
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}

// describeError renders core errors for the status line.
func describeError(err error) string {
	var ve *model.ValidationError
	var de *model.DuplicateItemError
	var se *model.SyncError
	switch {
	case errors.As(err, &de):
		return fmt.Sprintf("%q is already on the list", de.Name)
	case errors.As(err, &ve):
		return ve.Reason
	case errors.Is(err, board.ErrOffline):
		return "Storage unreachable; the group is kept locally for now"
	case errors.As(err, &se) && model.IsTimeout(err):
		return "Timed out: " + se.Error()
	}
	return err.Error()
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type activityMsg []logtail.Entry

type submitMsg struct {
	ref model.GroupRef
	err error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
