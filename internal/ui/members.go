package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mochiyoru/internal/model"
)

// handleMembersKey processes keyboard input for the member editor.
func (m Model) handleMembersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	members := m.snapshot.Board.Members

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.memberCursor > 0 {
			m.memberCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.memberCursor < len(members)-1 {
			m.memberCursor++
		}
	case key.Matches(msg, m.keys.AddMember):
		if len(members) >= model.MaxMembers {
			m.setFlash(fmt.Sprintf("A group holds at most %d members", model.MaxMembers), true)
			return m, nil
		}
		return m, m.startInput(inputMemberName, "Member: ", "")
	case key.Matches(msg, m.keys.RemoveMember):
		if len(members) == 0 {
			return m, nil
		}
		m.board.RemoveMember(members[clampCursor(m.memberCursor, len(members))])
		return m, m.refreshSnapshot()
	case key.Matches(msg, m.keys.RenameGroup):
		return m, m.startInput(inputGroupName, "Group name: ", m.snapshot.Board.Group.Name)
	case key.Matches(msg, m.keys.SubmitGroup), key.Matches(msg, m.keys.Confirm):
		if m.submitting {
			return m, nil
		}
		m.submitting = true
		return m, m.submitCmd()
	case key.Matches(msg, m.keys.EditOnReopen):
		if err := m.board.RequestMemberEdit(m.ctx); err != nil {
			m.setFlash(describeError(err), true)
		} else {
			m.setFlash("The member editor will open on the next launch", false)
		}
	}
	return m, nil
}

func (m Model) submitCmd() tea.Cmd {
	b, parent := m.board, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, submitTimeout)
		defer cancel()
		ref, err := b.SubmitGroup(ctx)
		return submitMsg{ref: ref, err: err}
	}
}

// renderMembers renders the group editor.
func (m Model) renderMembers() string {
	styles := m.theme.Styles()
	st := m.snapshot.Board

	var b strings.Builder
	name := st.Group.Name
	if name == "" {
		name = model.DefaultGroupName
	}
	b.WriteString(styles.MutedText.Render("Group  "))
	b.WriteString(styles.Text.Bold(true).Render(name))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render(fmt.Sprintf("Members %d/%d", len(st.Members), model.MaxMembers)))
	b.WriteString("\n\n")

	if len(st.Members) == 0 {
		b.WriteString(styles.FaintText.Render("No members yet. Press a to add one; at least one is required to save."))
		b.WriteString("\n")
	}
	cursor := clampCursor(m.memberCursor, len(st.Members))
	for i, member := range st.Members {
		line := fmt.Sprintf("%2d. %s", i+1, cell(member, model.MaxMemberNameLength*2))
		if i == cursor {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.submitting:
		b.WriteString(styles.InfoText.Render("Saving..."))
	case st.Group.Confirmed():
		b.WriteString(styles.FaintText.Render("S saves changes to the group"))
	default:
		b.WriteString(styles.FaintText.Render("S creates the group and gives you a share link"))
	}
	b.WriteString("\n")
	return b.String()
}
