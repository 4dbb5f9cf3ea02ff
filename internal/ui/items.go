package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mochiyoru/internal/ledger"
	"github.com/five82/mochiyoru/internal/model"
)

// visibleItems returns the items in display order.
func (m Model) visibleItems() []model.Item {
	items := model.CloneItems(m.snapshot.Board.Items)
	if m.sorted {
		ledger.SortByAssignee(items)
	}
	return items
}

func (m Model) selectedItem() (model.Item, bool) {
	items := m.visibleItems()
	if len(items) == 0 {
		return model.Item{}, false
	}
	return items[clampCursor(m.itemCursor, len(items))], true
}

// handleItemsKey processes keyboard input for the items view.
func (m Model) handleItemsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.snapshot.Board.Items)

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.itemCursor > 0 {
			m.itemCursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.itemCursor < count-1 {
			m.itemCursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.itemCursor = 0
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.itemCursor = clampCursor(count-1, count)
		return m, nil
	case key.Matches(msg, m.keys.AddItem):
		return m, m.startInput(inputItemName, "Item: ", "")
	case key.Matches(msg, m.keys.ToggleSort):
		m.sorted = !m.sorted
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.CopyShareLink):
		return m.copyShareLink()
	}

	item, ok := m.selectedItem()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.NextAssignee):
		return m.setField(item.Name, model.FieldAssignee, cycleAssignee(m.board.AssigneeChoices(), item.Assignee, 1))
	case key.Matches(msg, m.keys.PrevAssignee):
		return m.setField(item.Name, model.FieldAssignee, cycleAssignee(m.board.AssigneeChoices(), item.Assignee, -1))
	case key.Matches(msg, m.keys.MoreQuantity):
		return m.setField(item.Name, model.FieldQuantity, quantityStep(item.Quantity, 1))
	case key.Matches(msg, m.keys.LessQuantity):
		return m.setField(item.Name, model.FieldQuantity, quantityStep(item.Quantity, -1))
	case key.Matches(msg, m.keys.EditQuantity):
		m.inputTarget = item.Name
		cmd := m.startInput(inputQuantity, "Quantity for "+item.Name+": ", item.Quantity)
		return m, cmd
	case key.Matches(msg, m.keys.DeleteItem):
		m.confirmDelete = item.Name
		return m, nil
	}
	return m, nil
}

func (m Model) setField(name string, field model.Field, value string) (tea.Model, tea.Cmd) {
	if err := m.board.SetItemField(name, field, value); err != nil {
		m.setFlash(describeError(err), true)
	}
	return m, m.refreshSnapshot()
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	name := m.confirmDelete
	switch {
	case key.Matches(msg, m.keys.ConfirmYes):
		m.confirmDelete = ""
		if err := m.board.RemoveItem(name); err != nil {
			m.setFlash(describeError(err), true)
		} else {
			m.setFlash("Deleted "+name, false)
		}
		return m, m.refreshSnapshot()
	case key.Matches(msg, m.keys.ConfirmNo):
		m.confirmDelete = ""
	}
	return m, nil
}

func (m Model) copyShareLink() (tea.Model, tea.Cmd) {
	url := m.shareURL()
	if url == "" {
		m.setFlash("No share link until the group is saved to storage", true)
		return m, nil
	}
	if err := clipboard.WriteAll(url); err != nil {
		m.setFlash("Share link: "+url, false)
		return m, nil
	}
	m.setFlash("Copied "+url, false)
	return m, nil
}

// cycleAssignee steps through choices from current. Unknown values restart
// at the first choice.
func cycleAssignee(choices []string, current string, dir int) string {
	if len(choices) == 0 {
		return ""
	}
	idx := -1
	for i, c := range choices {
		if c == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return choices[0]
	}
	n := len(choices)
	return choices[((idx+dir)%n+n)%n]
}

// quantityStep moves a numeric quantity within the 1..10 quick range. Free
// text that is not a plain number is left alone.
func quantityStep(current string, delta int) string {
	current = strings.TrimSpace(current)
	if current == "" {
		if delta > 0 {
			return "1"
		}
		return ""
	}
	n, err := strconv.Atoi(current)
	if err != nil {
		return current
	}
	n += delta
	if n < 1 {
		n = 1
	}
	if n > quantityMaxStep {
		n = quantityMaxStep
	}
	return strconv.Itoa(n)
}

// renderItems renders the item table.
func (m Model) renderItems() string {
	styles := m.theme.Styles()
	items := m.visibleItems()

	nameW, assigneeW, qtyW := m.itemColumns()
	var b strings.Builder
	header := cell("ITEM", nameW) + " " + cell("ASSIGNEE", assigneeW) + " " + cell("QTY", qtyW)
	b.WriteString(styles.MutedText.Bold(true).Render(header))
	b.WriteString("\n")

	if len(items) == 0 {
		b.WriteString(styles.FaintText.Render("Nothing yet. Press a to add what someone should bring."))
		b.WriteString("\n")
		return b.String()
	}

	cursor := clampCursor(m.itemCursor, len(items))
	start, end := window(cursor, len(items), m.bodyHeight()-2)
	for i := start; i < end; i++ {
		it := items[i]
		assignee := it.Assignee
		if assignee == "" {
			assignee = "未定"
		}
		qty := it.Quantity
		if qty == "" {
			qty = "-"
		}
		if i == cursor {
			row := cell(it.Name, nameW) + " " + cell(assignee, assigneeW) + " " + cell(qty, qtyW)
			b.WriteString(styles.Selected.Render(row))
		} else {
			b.WriteString(styles.Text.Render(cell(it.Name, nameW)))
			b.WriteString(" ")
			b.WriteString(styles.Assignee(it.Assignee, model.AssigneeAll).Render(cell(assignee, assigneeW)))
			b.WriteString(" ")
			b.WriteString(styles.Text.Render(cell(qty, qtyW)))
		}
		b.WriteString("\n")
	}

	if m.confirmDelete != "" {
		b.WriteString("\n")
		b.WriteString(styles.WarningText.Render(fmt.Sprintf("Delete %q? (y/n)", m.confirmDelete)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) itemColumns() (name, assignee, qty int) {
	qty = 6
	assignee = 14
	name = m.width - assignee - qty - 2
	if name < 12 {
		name = 12
	}
	if name > 40 {
		name = 40
	}
	return name, assignee, qty
}

// window returns the slice bounds that keep cursor visible in height rows.
func window(cursor, n, height int) (int, int) {
	if height <= 0 || n <= height {
		return 0, n
	}
	start := cursor - height/2
	if start < 0 {
		start = 0
	}
	if start+height > n {
		start = n - height
	}
	return start, start + height
}
