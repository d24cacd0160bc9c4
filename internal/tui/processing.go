package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aminssutt/AurisTraining/internal/progress"
)

func (m *Model) startMonitor(id string) tea.Cmd {
	m.stopMonitor()
	m.sessionID = id
	m.last = progress.Update{}

	ctx, cancel := context.WithCancel(m.ctx)
	mon := progress.New(m.deps.Client, id, progress.Options{
		Interval:          m.deps.PollInterval,
		HandoffDelay:      m.deps.HandoffDelay,
		NotStartedTimeout: m.deps.NotStartedTimeout,
		Retries:           m.deps.PollRetries,
		Logger:            m.logger,
		Meter:             m.deps.Meter,
	})
	m.monitor, m.cancelMonitor = mon, cancel
	go mon.Run(ctx)
	return listenMonitor(mon)
}

// stopMonitor cancels the running poll loop, if any.
func (m *Model) stopMonitor() {
	if m.cancelMonitor != nil {
		m.cancelMonitor()
	}
	m.monitor, m.cancelMonitor = nil, nil
}

func listenMonitor(mon *progress.Monitor) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-mon.Updates()
		return monitorMsg{from: mon, update: u, ok: ok}
	}
}

func (m *Model) updateProcessing(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case monitorMsg:
		if msg.from != m.monitor || !msg.ok {
			return nil
		}
		prev := m.last
		m.last = msg.update
		if s := msg.update.Session; s != nil && m.deps.Bookmarks != nil &&
			(prev.Session == nil || prev.Session.Status != s.Status) {
			if err := m.deps.Bookmarks.UpdateStatus(s.ID, s.Status); err != nil {
				m.logger.Warn("failed to update remembered session", "session_id", s.ID, "error", err)
			}
		}

		switch msg.update.State {
		case progress.HandedOff:
			return m.enterChat(m.sessionID)
		case progress.Errored:
			if msg.update.NotFound {
				m.stopMonitor()
				m.screen = screenNotFound
				m.notFound = msg.update.Err
			}
			return nil
		}
		return listenMonitor(msg.from)

	case tea.KeyMsg:
		if m.last.State == progress.Errored && msg.Type == tea.KeyEnter {
			m.goHome()
		}
	}
	return nil
}

func (m *Model) viewProcessing() string {
	st := m.styles
	u := m.last
	var b strings.Builder

	b.WriteString(st.title.Render("Preparing your assistant") + "\n")
	if u.Session != nil {
		b.WriteString(st.subtle.Render(u.Session.VehicleName) + "\n")
	}
	b.WriteString("\n")

	switch {
	case u.State == progress.Errored:
		b.WriteString(st.errLabel.Render("✗ Processing failed") + "\n\n")
		b.WriteString(st.errorText.Render(u.Err) + "\n\n")
		b.WriteString(st.help.Render("enter: start over • ctrl+c: quit") + "\n")
		return st.box.Render(b.String()) + "\n"

	case u.Session == nil:
		b.WriteString(m.spin.View() + " Loading session...\n")
		return b.String()
	}

	sess := u.Session
	b.WriteString(m.bar.ViewAs(float64(sess.Progress)/100) + "\n\n")

	if u.State == progress.Ready || u.State == progress.HandedOff {
		b.WriteString(st.success.Render("✓ Ready! Opening the chat...") + "\n\n")
	} else {
		b.WriteString(m.spin.View() + " " + st.strong.Render(u.Step.Label()))
		if sess.Message != "" {
			b.WriteString(st.subtle.Render("  " + sess.Message))
		}
		b.WriteString("\n")
		if sess.TotalPages > 0 {
			b.WriteString(st.subtle.Render(fmt.Sprintf("%d / %d pages", sess.ProcessedPages, sess.TotalPages)) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(st.renderTimeline(progress.Timeline(sess.Progress)))
	b.WriteString("\n" + st.help.Render("ctrl+c: quit") + "\n")
	return b.String()
}
