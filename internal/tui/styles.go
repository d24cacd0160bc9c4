package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aminssutt/AurisTraining/internal/progress"
	"github.com/aminssutt/AurisTraining/internal/render"
	"github.com/aminssutt/AurisTraining/internal/session"
)

type styles struct {
	title     lipgloss.Style
	subtle    lipgloss.Style
	help      lipgloss.Style
	errorText lipgloss.Style
	success   lipgloss.Style
	selected  lipgloss.Style
	userLabel lipgloss.Style
	botLabel  lipgloss.Style
	errLabel  lipgloss.Style
	strong    lipgloss.Style
	emphasis  lipgloss.Style
	box       lipgloss.Style
	accent    lipgloss.AdaptiveColor
}

func defaultStyles() styles {
	accent := lipgloss.AdaptiveColor{Light: "#B4002D", Dark: "#FF4D6A"}
	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		subtle:    lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#9A9A9A"}),
		help:      lipgloss.NewStyle().Faint(true),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		success:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		selected:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		userLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		botLabel:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		errLabel:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		strong:    lipgloss.NewStyle().Bold(true),
		emphasis:  lipgloss.NewStyle().Italic(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		accent: accent,
	}
}

// renderBlocks draws rendered message blocks as styled terminal text.
func (s styles) renderBlocks(blocks []render.Block, width int) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		var line strings.Builder
		if b.Kind == render.ListItem {
			line.WriteString("• ")
		}
		for _, sp := range b.Spans {
			switch sp.Style {
			case render.Strong:
				line.WriteString(s.strong.Render(sp.Text))
			case render.Emphasis:
				line.WriteString(s.emphasis.Render(sp.Text))
			default:
				line.WriteString(sp.Text)
			}
		}
		lines = append(lines, line.String())
	}
	out := strings.Join(lines, "\n")
	if width > 0 {
		out = lipgloss.NewStyle().Width(width).Render(out)
	}
	return out
}

func (s styles) renderTurn(t session.Turn, width int) string {
	switch t.Role {
	case session.RoleUser:
		return s.userLabel.Render("You") + "\n" + lipgloss.NewStyle().Width(width).Render(t.Content)
	case session.RoleError:
		return s.errLabel.Render("Error") + "\n" + s.errorText.Width(width).Render(t.Content)
	default:
		return s.botLabel.Render("Assistant") + "\n" + s.renderBlocks(render.Render(t.Content), width)
	}
}

func (s styles) renderTimeline(stages []progress.Stage) string {
	var b strings.Builder
	for _, st := range stages {
		switch st.State {
		case progress.Done:
			b.WriteString(s.success.Render("✓ " + st.Label))
		case progress.Active:
			b.WriteString(s.selected.Render("● " + st.Label))
		default:
			b.WriteString(s.subtle.Render("○ " + st.Label))
		}
		b.WriteString("\n")
	}
	return b.String()
}
