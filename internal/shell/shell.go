// Package shell is the line-oriented frontend. It runs the same flow as the
// TUI with plain prints, so it works without a terminal.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/conversation"
	"github.com/aminssutt/AurisTraining/internal/progress"
	"github.com/aminssutt/AurisTraining/internal/render"
	"github.com/aminssutt/AurisTraining/internal/route"
	"github.com/aminssutt/AurisTraining/internal/session"
	"github.com/aminssutt/AurisTraining/internal/upload"
)

// Client is every session API call the shell makes.
type Client interface {
	upload.Client
	progress.StatusGetter
	conversation.Sender
}

// Bookmarks remembers created sessions. It may be nil.
type Bookmarks interface {
	Save(sess *session.Session) error
	UpdateStatus(id string, status session.Status) error
}

// Options configure a Shell.
type Options struct {
	In        io.Reader
	Out       io.Writer
	Bookmarks Bookmarks
	Logger    *slog.Logger
	Meter     metric.Meter

	PollInterval      time.Duration
	HandoffDelay      time.Duration
	NotStartedTimeout time.Duration
	PollRetries       int
	RequestTimeout    time.Duration
}

// ErrProcessingFailed is returned by Watch when the session ends in error.
var ErrProcessingFailed = errors.New("processing failed")

// Shell drives one session at a time from a line reader.
type Shell struct {
	client  Client
	opts    Options
	logger  *slog.Logger
	out     io.Writer
	scanner *bufio.Scanner
}

// New creates a shell reading commands from opts.In.
func New(client Client, opts Options) *Shell {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.In == nil {
		opts.In = strings.NewReader("")
	}
	return &Shell{
		client:  client,
		opts:    opts,
		logger:  opts.Logger,
		out:     opts.Out,
		scanner: bufio.NewScanner(opts.In),
	}
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// Setup uploads the files at paths for a new session and returns its id.
func (s *Shell) Setup(ctx context.Context, vehicle string, paths []string) (string, error) {
	var sel upload.Selection
	for _, p := range paths {
		f, err := upload.LocalFile(p)
		if err != nil {
			return "", err
		}
		if err := sel.Add(f); err != nil {
			return "", err
		}
	}

	s.printf("Creating session for %s with %d document(s)\n", strings.TrimSpace(vehicle), sel.Len())
	res, err := upload.New(s.client, s.logger).Run(ctx, vehicle, sel.Files(),
		func(name string, st session.UploadStatus) {
			switch st {
			case session.UploadUploading:
				s.printf("  uploading %s...\n", name)
			case session.UploadDone:
				s.printf("  ✓ %s\n", name)
			case session.UploadFailed:
				s.printf("  ✗ %s\n", name)
			}
		})
	if err != nil {
		return "", err
	}
	if res.ProcessErr != nil {
		s.logger.Warn("processing trigger failed", "session_id", res.Session.ID, "error", res.ProcessErr)
	}
	if s.opts.Bookmarks != nil {
		if err := s.opts.Bookmarks.Save(res.Session); err != nil {
			s.logger.Warn("failed to remember session", "session_id", res.Session.ID, "error", err)
		}
	}
	s.printf("Session %s created\n", res.Session.ID)
	return res.Session.ID, nil
}

// Watch prints processing progress until the session is handed off.
func (s *Shell) Watch(ctx context.Context, id string) (progress.Update, error) {
	mon := progress.New(s.client, id, progress.Options{
		Interval:          s.opts.PollInterval,
		HandoffDelay:      s.opts.HandoffDelay,
		NotStartedTimeout: s.opts.NotStartedTimeout,
		Retries:           s.opts.PollRetries,
		Logger:            s.logger,
		Meter:             s.opts.Meter,
	})

	done := make(chan progress.Update, 1)
	go func() { done <- mon.Run(ctx) }()

	var lastLine string
	for u := range mon.Updates() {
		if u.Session == nil {
			continue
		}
		line := fmt.Sprintf("[%3d%%] %s", u.Session.Progress, u.Step.Label())
		if u.Session.Message != "" {
			line += " - " + u.Session.Message
		}
		if line != lastLine {
			s.printf("%s\n", line)
			lastLine = line
		}
	}
	final := <-done

	if s.opts.Bookmarks != nil && final.Session != nil {
		if err := s.opts.Bookmarks.UpdateStatus(id, final.Session.Status); err != nil {
			s.logger.Warn("failed to update remembered session", "session_id", id, "error", err)
		}
	}

	switch final.State {
	case progress.HandedOff:
		s.printf("✓ Ready\n")
		return final, nil
	case progress.Errored:
		if final.NotFound {
			return final, &api.NotFoundError{SessionID: id, Message: final.Err}
		}
		return final, fmt.Errorf("%w: %s", ErrProcessingFailed, final.Err)
	default:
		return final, ctx.Err()
	}
}

// Chat opens the conversation for a ready session and reads questions
// until /quit or end of input.
func (s *Shell) Chat(ctx context.Context, id string) error {
	r := route.EnterChat(ctx, s.client, id)
	switch r.Kind {
	case route.Processing:
		if _, err := s.Watch(ctx, id); err != nil {
			return err
		}
		if r = route.EnterChat(ctx, s.client, id); r.Kind != route.Chat {
			return fmt.Errorf("session %s is not ready", id)
		}
	case route.NotFound:
		return errors.New(r.Message)
	}

	conv := s.newConversation(r)
	s.printf("\n=== %s ===\n", r.Session.VehicleName)
	s.printf("Type your question, /help for commands\n\n")

	for {
		s.printf("You: ")
		if !s.scanner.Scan() {
			break
		}
		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			next, quit, err := s.handleCommand(ctx, conv, input)
			if err != nil {
				s.printf("Error: %s\n", api.UserMessage(err))
				s.logger.Error("command error", "command", input, "error", err)
			}
			if quit {
				break
			}
			if next != nil {
				conv = next
			}
			continue
		}

		if !conv.Send(ctx, input) {
			continue
		}
		conv.Wait()
		turns := conv.Turns()
		s.printTurn(turns[len(turns)-1])
	}

	s.printf("Goodbye!\n")
	return s.scanner.Err()
}

func (s *Shell) newConversation(r route.Route) *conversation.Controller {
	return conversation.New(s.client, r.SessionID, conversation.Options{
		Logger:         s.logger,
		Meter:          s.opts.Meter,
		RequestTimeout: s.opts.RequestTimeout,
	})
}

func (s *Shell) printTurn(t session.Turn) {
	switch t.Role {
	case session.RoleError:
		s.printf("Error: %s\n\n", t.Content)
	default:
		s.printf("Assistant:\n%s\n\n", render.Plain(render.Render(t.Content)))
	}
}

// handleCommand runs a slash command. It returns a new controller when the
// command switched sessions.
func (s *Shell) handleCommand(ctx context.Context, conv *conversation.Controller, cmd string) (*conversation.Controller, bool, error) {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/quit", "/exit":
		return nil, true, nil

	case "/help":
		s.printf("Commands:\n")
		s.printf("  /status  show the session record\n")
		s.printf("  /new     start over with new documents\n")
		s.printf("  /quit    leave\n")
		return nil, false, nil

	case "/status":
		sess, err := s.client.GetStatus(ctx, conv.SessionID())
		if err != nil {
			return nil, false, err
		}
		s.printf("Session:  %s\n", sess.ID)
		s.printf("Vehicle:  %s\n", sess.VehicleName)
		s.printf("Status:   %s (%d%%)\n", sess.Status, sess.Progress)
		if sess.TotalPages > 0 {
			s.printf("Pages:    %d/%d\n", sess.ProcessedPages, sess.TotalPages)
		}
		if len(sess.PDFFiles) > 0 {
			s.printf("Files:    %s\n", strings.Join(sess.PDFFiles, ", "))
		}
		s.printf("Messages: %d\n", len(conv.Turns()))
		return nil, false, nil

	case "/new":
		if !s.confirm("Start a new session? The current conversation will be lost. (y/n) ") {
			return nil, false, nil
		}
		vehicle := s.prompt("Vehicle name: ")
		paths := strings.Fields(s.prompt("PDF files (space separated): "))
		id, err := s.Setup(ctx, vehicle, paths)
		if err != nil {
			return nil, false, err
		}
		if _, err := s.Watch(ctx, id); err != nil {
			return nil, false, err
		}
		r := route.EnterChat(ctx, s.client, id)
		if r.Kind != route.Chat {
			return nil, false, fmt.Errorf("session %s is not ready", id)
		}
		s.printf("\n=== %s ===\n\n", r.Session.VehicleName)
		return s.newConversation(r), false, nil

	default:
		return nil, false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

func (s *Shell) prompt(label string) string {
	s.printf("%s", label)
	if !s.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(s.scanner.Text())
}

func (s *Shell) confirm(label string) bool {
	answer := strings.ToLower(s.prompt(label))
	return answer == "y" || answer == "yes"
}
