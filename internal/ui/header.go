package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/mochiyoru/internal/model"
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	body := b.String()

	lines := strings.Count(body, "\n")
	if pad := m.height - 1 - lines; pad > 0 {
		body += strings.Repeat("\n", pad)
	}
	return body + m.renderStatusLine()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewItems:
		return m.renderItems()
	case ViewMembers:
		return m.renderMembers()
	case ViewActivity:
		return m.renderActivity()
	default:
		return ""
	}
}

// renderHeader shows the group, the feed state and pending writes.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	st := m.snapshot.Board

	name := st.Group.Name
	if name == "" {
		name = model.DefaultGroupName
	}
	parts := []string{
		styles.Logo.Render("mochiyoru"),
		styles.Text.Bold(true).Render(truncate(name, 30)),
	}

	feed := m.feedLabel()
	parts = append(parts, styles.FeedBadge(feed).Render(feed))

	if st.Pending > 0 {
		parts = append(parts, styles.WarningText.Render(fmt.Sprintf("saving %d", st.Pending)))
	}
	if st.Group.Placeholder {
		parts = append(parts, styles.WarningText.Render("local only"))
	}
	if url := m.shareURL(); url != "" && m.width >= 100 {
		parts = append(parts, styles.FaintText.Render(truncate(url, 48)))
	}

	line := strings.Join(parts, "  ")
	return styles.Header.Width(max(m.width, lipgloss.Width(line))).Render(line)
}

// feedLabel names the connection state shown in the header.
func (m Model) feedLabel() string {
	st := m.snapshot.Board
	switch {
	case m.snapshot.IsOffline():
		return "OFFLINE"
	case !st.FeedEnabled:
		return "POLLING"
	case st.NeedsReconnect:
		return "RECONNECTING"
	case st.Feed.ShowsConnecting():
		return "CONNECTING"
	}
	return st.Feed.String()
}

// renderCommandBar lists the keys of the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	var cmds []string
	switch m.currentView {
	case ViewItems:
		cmds = []string{"a add", "c assignee", "+/- qty", "n qty", "d delete", "s sort", "L link"}
	case ViewMembers:
		cmds = []string{"a add", "d remove", "r rename", "S save", "E edit next launch"}
	case ViewActivity:
		cmds = []string{"j/k scroll"}
	}
	cmds = append(cmds, "tab views", "? help", "q quit")

	tabs := []string{m.tabLabel(ViewItems, "Items"), m.tabLabel(ViewMembers, "Members"), m.tabLabel(ViewActivity, "Activity")}
	line := strings.Join(tabs, " ") + "  " + styles.MutedText.Render(strings.Join(cmds, " · "))
	return styles.Footer.Width(max(m.width, lipgloss.Width(line))).Render(line)
}

func (m Model) tabLabel(v View, label string) string {
	styles := m.theme.Styles()
	if m.currentView == v {
		return styles.Selected.Render(" " + label + " ")
	}
	return styles.MutedText.Render(" " + label + " ")
}

// renderStatusLine shows the text input, a flash message or the sort mode.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles()
	switch {
	case m.inputMode != inputNone:
		return m.input.View()
	case m.flash != "":
		if m.flashErr {
			return styles.DangerText.Render(m.flash)
		}
		return styles.SuccessText.Render(m.flash)
	case m.snapshot.LastError != nil && m.snapshot.IsOffline():
		return styles.WarningText.Render("Storage unreachable: " + truncate(m.snapshot.LastError.Error(), 80))
	}
	order := "list order"
	if m.sorted {
		order = "sorted by assignee"
	}
	return styles.FaintText.Render(fmt.Sprintf("%d items · %s · theme %s", len(m.snapshot.Board.Items), order, m.theme.Name))
}
