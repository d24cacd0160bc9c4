// Package tui is the full-screen terminal frontend: upload, processing,
// chat and not-found screens driven by one Bubble Tea model.
package tui

import (
	"context"
	"log/slog"
	"time"

	pbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/otel/metric"

	"github.com/aminssutt/AurisTraining/internal/conversation"
	"github.com/aminssutt/AurisTraining/internal/progress"
	"github.com/aminssutt/AurisTraining/internal/route"
	"github.com/aminssutt/AurisTraining/internal/session"
	"github.com/aminssutt/AurisTraining/internal/upload"
)

// Client is every session API call the screens make.
type Client interface {
	upload.Client
	progress.StatusGetter
	conversation.Sender
}

// Bookmarks remembers sessions created from the UI. It may be nil.
type Bookmarks interface {
	Save(sess *session.Session) error
	UpdateStatus(id string, status session.Status) error
}

// Deps are the collaborators the UI drives.
type Deps struct {
	Client    Client
	Bookmarks Bookmarks
	Logger    *slog.Logger
	Meter     metric.Meter

	PollInterval      time.Duration
	HandoffDelay      time.Duration
	NotStartedTimeout time.Duration
	PollRetries       int
	RequestTimeout    time.Duration
}

type screen int

const (
	screenUpload screen = iota
	screenProcessing
	screenChat
	screenNotFound
)

type (
	routeMsg        struct{ route route.Route }
	uploadStatusMsg struct {
		name   string
		status session.UploadStatus
	}
	uploadDoneMsg struct {
		res *upload.Result
		err error
	}
	monitorMsg struct {
		from   *progress.Monitor
		update progress.Update
		ok     bool
	}
	chatChangedMsg struct{ from *conversation.Controller }
)

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	logger *slog.Logger
	styles styles
	screen screen
	width  int
	height int
	spin   spinner.Model

	// startRoute is the route the program was opened with.
	startRoute route.Route

	// upload screen
	vehicle    textinput.Model
	path       textinput.Model
	focus      int
	selection  upload.Selection
	cursor     int
	fileStatus map[string]session.UploadStatus
	uploading  bool
	uploadCh   chan tea.Msg
	orch       *upload.Orchestrator
	formErr    string

	// processing screen
	sessionID     string
	monitor       *progress.Monitor
	cancelMonitor context.CancelFunc
	last          progress.Update
	bar           pbar.Model

	// chat screen
	conv        *conversation.Controller
	chatCh      chan tea.Msg
	chatDone    chan struct{}
	chatInput   textinput.Model
	viewport    viewport.Model
	vehicleName string
	confirmNew  bool

	// not found screen
	notFound string
}

// New builds the model and the screen it opens on.
func New(ctx context.Context, deps Deps, start route.Route) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		deps:       deps,
		ctx:        ctx,
		logger:     deps.Logger,
		styles:     defaultStyles(),
		spin:       sp,
		fileStatus: make(map[string]session.UploadStatus),
		orch:       upload.New(deps.Client, deps.Logger),
		bar:        pbar.New(pbar.WithDefaultGradient(), pbar.WithWidth(50)),
		viewport:   viewport.New(80, 20),
	}
	m.spin.Style = m.styles.selected
	m.resetUploadForm()

	chat := textinput.New()
	chat.Placeholder = "Ask a question about your vehicle"
	chat.Prompt = "› "
	chat.CharLimit = 2000
	chat.Width = 70
	m.chatInput = chat

	switch start.Kind {
	case route.Processing:
		m.screen = screenProcessing
		m.sessionID = start.SessionID
	case route.Chat:
		// resolved through the chat gate in Init
		m.screen = screenProcessing
		m.sessionID = start.SessionID
	case route.NotFound:
		m.screen = screenNotFound
		m.notFound = start.Message
	}
	m.startRoute = start
	return m
}

// Init starts the spinner and whatever the opening screen needs.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick, textinput.Blink}
	switch m.startRoute.Kind {
	case route.Processing:
		cmds = append(cmds, m.startMonitor(m.startRoute.SessionID))
	case route.Chat:
		cmds = append(cmds, m.enterChat(m.startRoute.SessionID))
	}
	return tea.Batch(cmds...)
}

// Update routes messages to the active screen.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stopMonitor()
			return m, tea.Quit
		}

	case routeMsg:
		return m, m.applyRoute(msg.route)
	}

	switch m.screen {
	case screenUpload:
		return m, m.updateUpload(msg)
	case screenProcessing:
		return m, m.updateProcessing(msg)
	case screenChat:
		return m, m.updateChat(msg)
	default:
		return m, m.updateNotFound(msg)
	}
}

// View draws the active screen.
func (m *Model) View() string {
	switch m.screen {
	case screenUpload:
		return m.viewUpload()
	case screenProcessing:
		return m.viewProcessing()
	case screenChat:
		return m.viewChat()
	default:
		return m.viewNotFound()
	}
}

func (m *Model) layout() {
	w := max(m.width-4, 20)
	m.vehicle.Width = w - 20
	m.path.Width = w - 20
	m.chatInput.Width = w - 4
	m.bar.Width = min(w, 60)
	m.viewport.Width = w
	m.viewport.Height = max(m.height-8, 5)
	if m.conv != nil {
		m.refreshTranscript()
	}
}

func (m *Model) applyRoute(r route.Route) tea.Cmd {
	m.logger.Info("route", "kind", r.Kind.String(), "session_id", r.SessionID)
	switch r.Kind {
	case route.Processing:
		m.screen = screenProcessing
		return m.startMonitor(r.SessionID)
	case route.Chat:
		m.stopMonitor()
		m.screen = screenChat
		return m.openChat(r)
	case route.NotFound:
		m.stopMonitor()
		m.screen = screenNotFound
		m.notFound = r.Message
		return nil
	default:
		m.goHome()
		return nil
	}
}

func (m *Model) goHome() {
	m.stopMonitor()
	m.screen = screenUpload
	m.sessionID = ""
	m.closeChat()
	m.confirmNew = false
	m.last = progress.Update{}
	m.selection.Clear()
	m.fileStatus = make(map[string]session.UploadStatus)
	m.resetUploadForm()
}

// enterChat runs the chat gate in the background.
func (m *Model) enterChat(id string) tea.Cmd {
	client, ctx := m.deps.Client, m.ctx
	return func() tea.Msg {
		return routeMsg{route: route.EnterChat(ctx, client, id)}
	}
}

// listen waits for the next message on ch. It gives up once done is
// closed; a nil done never fires.
func listen(ch <-chan tea.Msg, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		case <-done:
			return nil
		}
	}
}

func (m *Model) updateNotFound(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok && (k.Type == tea.KeyEnter || k.String() == "q") {
		m.goHome()
	}
	return nil
}

func (m *Model) viewNotFound() string {
	msg := m.notFound
	if msg == "" {
		msg = "Session not found"
	}
	return m.styles.box.Render(
		m.styles.errLabel.Render("✗ "+msg)+"\n\n"+
			m.styles.help.Render("enter: back to upload • ctrl+c: quit"),
	) + "\n"
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, deps Deps, start route.Route) error {
	p := tea.NewProgram(New(ctx, deps, start), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
