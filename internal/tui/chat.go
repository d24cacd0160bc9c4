package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aminssutt/AurisTraining/internal/conversation"
	"github.com/aminssutt/AurisTraining/internal/route"
)

func (m *Model) openChat(r route.Route) tea.Cmd {
	m.closeChat()
	m.sessionID = r.SessionID
	if r.Session != nil {
		m.vehicleName = r.Session.VehicleName
	}

	conv := conversation.New(m.deps.Client, r.SessionID, conversation.Options{
		Logger:         m.logger,
		Meter:          m.deps.Meter,
		RequestTimeout: m.deps.RequestTimeout,
	})
	ch := make(chan tea.Msg, 1)
	conv.OnChange(func() {
		// coalesce: one pending refresh is enough
		select {
		case ch <- chatChangedMsg{from: conv}:
		default:
		}
	})
	m.conv, m.chatCh, m.chatDone = conv, ch, make(chan struct{})
	m.confirmNew = false
	m.chatInput.SetValue("")
	m.chatInput.Focus()
	m.refreshTranscript()
	return listen(ch, m.chatDone)
}

// closeChat drops the conversation and releases its pending listener.
func (m *Model) closeChat() {
	if m.chatDone != nil {
		close(m.chatDone)
	}
	m.conv, m.chatCh, m.chatDone = nil, nil, nil
}

func (m *Model) refreshTranscript() {
	width := max(m.viewport.Width-2, 20)
	turns := m.conv.Turns()
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, m.styles.renderTurn(t, width))
	}
	if len(parts) == 0 {
		parts = append(parts, m.styles.subtle.Render("Ask anything about your "+m.vehicleName+"."))
	}
	m.viewport.SetContent(strings.Join(parts, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *Model) updateChat(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case chatChangedMsg:
		if msg.from != m.conv {
			return nil
		}
		m.refreshTranscript()
		return listen(m.chatCh, m.chatDone)

	case tea.KeyMsg:
		if m.confirmNew {
			switch msg.String() {
			case "y", "Y":
				m.goHome()
			case "n", "N", "esc":
				m.confirmNew = false
			}
			return nil
		}

		switch msg.String() {
		case "ctrl+n":
			m.confirmNew = true
			return nil
		case "enter":
			m.conv.SetDraft(m.chatInput.Value())
			if m.conv.SendDraft(m.ctx) {
				m.chatInput.SetValue("")
			}
			return nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return cmd
		}
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return cmd
}

func (m *Model) viewChat() string {
	st := m.styles
	var b strings.Builder

	b.WriteString(st.title.Render("🚗 "+m.vehicleName) + "  " + st.subtle.Render(m.sessionID) + "\n\n")
	b.WriteString(m.viewport.View() + "\n\n")

	switch {
	case m.confirmNew:
		b.WriteString(st.selected.Render("Start a new session? The current conversation will be lost. (y/n)") + "\n")
	case m.conv.InFlight():
		b.WriteString(m.spin.View() + st.subtle.Render(" The assistant is typing...") + "\n")
	default:
		b.WriteString(m.chatInput.View() + "\n")
	}
	b.WriteString(st.help.Render("enter: send • pgup/pgdown: scroll • ctrl+n: new session • ctrl+c: quit") + "\n")
	return b.String()
}
