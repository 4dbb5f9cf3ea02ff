package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	Escape     key.Binding

	// View switching
	ViewItems    key.Binding
	ViewMembers  key.Binding
	ViewActivity key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Items
	AddItem       key.Binding
	NextAssignee  key.Binding
	PrevAssignee  key.Binding
	MoreQuantity  key.Binding
	LessQuantity  key.Binding
	EditQuantity  key.Binding
	DeleteItem    key.Binding
	ToggleSort    key.Binding
	CopyShareLink key.Binding
	ConfirmYes    key.Binding
	ConfirmNo     key.Binding

	// Members
	AddMember    key.Binding
	RemoveMember key.Binding
	RenameGroup  key.Binding
	SubmitGroup  key.Binding
	EditOnReopen key.Binding

	// Text input
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Cycle views"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back / cancel"),
		),

		ViewItems: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "Items"),
		),
		ViewMembers: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Members"),
		),
		ViewActivity: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Activity"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "Up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "Down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Bottom"),
		),

		AddItem: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Add item"),
		),
		NextAssignee: key.NewBinding(
			key.WithKeys("c", "right"),
			key.WithHelp("c/→", "Next assignee"),
		),
		PrevAssignee: key.NewBinding(
			key.WithKeys("C", "left"),
			key.WithHelp("C/←", "Previous assignee"),
		),
		MoreQuantity: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "Quantity up"),
		),
		LessQuantity: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "Quantity down"),
		),
		EditQuantity: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Type quantity"),
		),
		DeleteItem: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "Delete"),
		),
		ToggleSort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Sort by assignee"),
		),
		CopyShareLink: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Copy share link"),
		),
		ConfirmYes: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "Yes"),
		),
		ConfirmNo: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n", "No"),
		),

		AddMember: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Add member"),
		),
		RemoveMember: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "Remove member"),
		),
		RenameGroup: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Rename group"),
		),
		SubmitGroup: key.NewBinding(
			key.WithKeys("S", "ctrl+s"),
			key.WithHelp("S", "Save group"),
		),
		EditOnReopen: key.NewBinding(
			key.WithKeys("E"),
			key.WithHelp("E", "Edit members next launch"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewItems, k.ViewMembers, k.ViewActivity, k.Escape},
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.AddItem, k.NextAssignee, k.PrevAssignee, k.MoreQuantity, k.LessQuantity, k.EditQuantity, k.DeleteItem, k.ToggleSort, k.CopyShareLink},
		{k.AddMember, k.RemoveMember, k.RenameGroup, k.SubmitGroup, k.EditOnReopen},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
