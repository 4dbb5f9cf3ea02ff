package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mochiyoru/internal/logtail"
	"github.com/five82/mochiyoru/internal/state"
)

// loadActivity reads the tail of the client log in the background.
func (m Model) loadActivity() tea.Cmd {
	path := m.logPath
	if path == "" {
		return nil
	}
	logger := m.logger
	return func() tea.Msg {
		entries, err := logtail.Tail(path, activityLines, "info")
		if err != nil {
			logger.Debug("activity log unreadable", "err", err)
			return nil
		}
		return activityMsg(entries)
	}
}

// updateActivity re-renders the activity viewport content.
func (m *Model) updateActivity() {
	if !m.ready {
		return
	}
	atBottom := m.activity.AtBottom()
	m.activity.SetContent(m.renderActivityContent())
	if atBottom {
		m.activity.GotoBottom()
	}
}

func (m Model) renderActivityContent() string {
	styles := m.theme.Styles()
	var b strings.Builder

	b.WriteString(styles.AccentText.Bold(true).Render("Notices"))
	b.WriteString("\n")
	if len(m.snapshot.Notices) == 0 {
		b.WriteString(styles.FaintText.Render("No sync problems so far."))
		b.WriteString("\n")
	}
	for _, n := range m.snapshot.Notices {
		style := styles.Text
		switch n.Level {
		case state.LevelWarn:
			style = styles.WarningText
		case state.LevelError:
			style = styles.DangerText
		}
		b.WriteString(styles.FaintText.Render(n.At.Format("15:04:05") + " "))
		b.WriteString(style.Render(n.Message))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.AccentText.Bold(true).Render("Log"))
	b.WriteString("\n")
	for _, e := range m.activityLogs {
		b.WriteString(m.renderLogEntry(e))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderLogEntry(e logtail.Entry) string {
	styles := m.theme.Styles()
	if e.Level == "" {
		return styles.FaintText.Render(e.Raw)
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(styles.FaintText.Render(e.Time.Local().Format("15:04:05") + " "))
	}
	level := styles.MutedText
	switch e.Level {
	case "warn":
		level = styles.WarningText
	case "error", "fatal":
		level = styles.DangerText
	}
	b.WriteString(level.Render(strings.ToUpper(e.Level[:min(4, len(e.Level))])))
	b.WriteString(" ")
	b.WriteString(styles.Text.Render(e.Message))
	for _, f := range e.Fields {
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(f.Key + "="))
		b.WriteString(styles.InfoText.Render(f.Value))
	}
	return b.String()
}

func (m Model) renderActivity() string {
	return m.activity.View()
}
