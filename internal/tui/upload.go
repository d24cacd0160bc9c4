package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/route"
	"github.com/aminssutt/AurisTraining/internal/session"
	"github.com/aminssutt/AurisTraining/internal/upload"
)

const (
	focusVehicle = iota
	focusPath
	focusList
)

func (m *Model) resetUploadForm() {
	v := textinput.New()
	v.Placeholder = "e.g. Toyota Auris Hybride 2015"
	v.Prompt = ""
	v.CharLimit = 120
	v.Width = 50
	v.Focus()

	p := textinput.New()
	p.Placeholder = "path/to/manual.pdf (globs allowed)"
	p.Prompt = ""
	p.Width = 50

	m.vehicle, m.path = v, p
	m.focus = focusVehicle
	m.cursor = 0
	m.formErr = ""
	m.uploading = false
}

func (m *Model) setFocus(f int) {
	m.focus = f
	m.vehicle.Blur()
	m.path.Blur()
	switch f {
	case focusVehicle:
		m.vehicle.Focus()
	case focusPath:
		m.path.Focus()
	}
}

func (m *Model) updateUpload(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case uploadStatusMsg:
		m.fileStatus[msg.name] = msg.status
		return listen(m.uploadCh, nil)

	case uploadDoneMsg:
		m.uploading = false
		m.uploadCh = nil
		if msg.err != nil {
			var fe *upload.FileError
			if errors.As(msg.err, &fe) {
				m.formErr = fe.Error()
			} else {
				m.formErr = api.UserMessage(msg.err)
			}
			return nil
		}
		sess := msg.res.Session
		if msg.res.ProcessErr != nil {
			m.logger.Warn("processing trigger failed", "session_id", sess.ID, "error", msg.res.ProcessErr)
		}
		if m.deps.Bookmarks != nil {
			if err := m.deps.Bookmarks.Save(sess); err != nil {
				m.logger.Warn("failed to remember session", "session_id", sess.ID, "error", err)
			}
		}
		return m.applyRoute(route.EnterProcessing(sess.ID))

	case tea.KeyMsg:
		if m.uploading {
			return nil
		}
		switch msg.String() {
		case "tab":
			m.setFocus((m.focus + 1) % 3)
			return nil
		case "shift+tab":
			m.setFocus((m.focus + 2) % 3)
			return nil
		case "ctrl+s":
			return m.startUpload()
		case "enter":
			switch m.focus {
			case focusVehicle:
				m.setFocus(focusPath)
			case focusPath:
				m.addPaths(m.path.Value())
			default:
				return m.startUpload()
			}
			return nil
		}
		if m.focus == focusList {
			switch msg.String() {
			case "up", "k":
				if m.cursor > 0 {
					m.cursor--
				}
			case "down", "j":
				if m.cursor < m.selection.Len()-1 {
					m.cursor++
				}
			case "d", "x", "delete", "backspace":
				m.selection.Remove(m.cursor)
				if m.cursor >= m.selection.Len() && m.cursor > 0 {
					m.cursor--
				}
			}
			return nil
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusVehicle:
		m.vehicle, cmd = m.vehicle.Update(msg)
	case focusPath:
		m.path, cmd = m.path.Update(msg)
	}
	return cmd
}

// addPaths adds every file the entry resolves to. Globs are expanded.
func (m *Model) addPaths(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	paths := []string{entry}
	if strings.ContainsAny(entry, "*?[") {
		matches, err := filepath.Glob(entry)
		if err != nil || len(matches) == 0 {
			m.formErr = fmt.Sprintf("no file matches %s", entry)
			return
		}
		paths = matches
	}

	var files []api.File
	for _, p := range paths {
		f, err := upload.LocalFile(p)
		if err != nil {
			m.formErr = err.Error()
			return
		}
		files = append(files, f)
	}
	m.formErr = ""
	if err := m.selection.Add(files...); err != nil {
		m.formErr = api.UserMessage(err)
	}
	m.path.SetValue("")
}

func (m *Model) startUpload() tea.Cmd {
	if m.uploading {
		return nil
	}
	m.formErr = ""
	m.fileStatus = make(map[string]session.UploadStatus)
	files := m.selection.Files()
	vehicle := m.vehicle.Value()

	ch := make(chan tea.Msg, 3*len(files)+1)
	m.uploadCh = ch
	m.uploading = true
	ctx := m.ctx
	go func() {
		defer close(ch)
		res, err := m.orch.Run(ctx, vehicle, files, func(name string, st session.UploadStatus) {
			ch <- uploadStatusMsg{name: name, status: st}
		})
		ch <- uploadDoneMsg{res: res, err: err}
	}()
	return listen(ch, nil)
}

func (m *Model) viewUpload() string {
	st := m.styles
	var b strings.Builder

	b.WriteString(st.title.Render("Vehicle assistant") + "\n")
	b.WriteString(st.subtle.Render("Upload your vehicle manuals to start chatting with them.") + "\n\n")

	label := func(text string, f int) string {
		if m.focus == f {
			return st.selected.Render("› " + text)
		}
		return "  " + text
	}
	b.WriteString(label("Vehicle name", focusVehicle) + "\n  " + m.vehicle.View() + "\n\n")
	b.WriteString(label("Add PDF", focusPath) + "\n  " + m.path.View() + "\n\n")
	b.WriteString(label(fmt.Sprintf("Documents (%d)", m.selection.Len()), focusList) + "\n")

	files := m.selection.Files()
	if len(files) == 0 {
		b.WriteString(st.subtle.Render("  no file selected") + "\n")
	}
	for i, f := range files {
		line := fmt.Sprintf("%s  %s", f.Name, st.subtle.Render(upload.FormatSize(f.Size)))
		if api.OverSizeHint(f) {
			line += "  " + st.errorText.Render("over 50 MB, may be refused")
		}
		if status, ok := m.fileStatus[f.Name]; ok {
			line += "  " + m.statusBadge(status)
		}
		if m.focus == focusList && i == m.cursor {
			b.WriteString(st.selected.Render("  ▸ ") + line + "\n")
		} else {
			b.WriteString("    " + line + "\n")
		}
	}

	if m.formErr != "" {
		b.WriteString("\n" + st.errorText.Render("⚠ "+m.formErr) + "\n")
	}
	b.WriteString("\n")
	if m.uploading {
		b.WriteString(m.spin.View() + " Uploading documents...\n")
	} else {
		b.WriteString(st.help.Render("tab: next field • enter: add file • d: remove • ctrl+s: start • ctrl+c: quit") + "\n")
	}
	return b.String()
}

func (m *Model) statusBadge(s session.UploadStatus) string {
	switch s {
	case session.UploadUploading:
		return m.spin.View()
	case session.UploadDone:
		return m.styles.success.Render("✓")
	case session.UploadFailed:
		return m.styles.errorText.Render("✗")
	default:
		return m.styles.subtle.Render("…")
	}
}
