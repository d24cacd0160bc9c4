// Package conversation keeps the chat transcript of a ready session and
// sends one question at a time.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/session"
)

// ConnectionErrorMessage is the error turn shown when the server could not
// be reached or answered with something unreadable.
const ConnectionErrorMessage = "Unable to reach the server. Check your connection and try again."

// Sender is the chat call the controller makes.
type Sender interface {
	SendChatMessage(ctx context.Context, sessionID, text string) (string, error)
}

// Options configure a Controller.
type Options struct {
	Logger *slog.Logger
	Meter  metric.Meter
	// RequestTimeout bounds a single chat request. Zero means no limit.
	RequestTimeout time.Duration
}

// Controller owns the transcript of one session.
type Controller struct {
	client    Sender
	sessionID string
	logger    *slog.Logger
	timeout   time.Duration

	sends    metric.Int64Counter
	failures metric.Int64Counter

	mu       sync.Mutex
	turns    []session.Turn
	draft    string
	inFlight bool
	subs     []func()
	wg       sync.WaitGroup
}

// New creates a controller with an empty transcript.
func New(client Sender, sessionID string, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("")
	}
	c := &Controller{
		client:    client,
		sessionID: sessionID,
		logger:    opts.Logger.With("session_id", sessionID),
		timeout:   opts.RequestTimeout,
	}

	var err error
	if c.sends, err = opts.Meter.Int64Counter("assistant.chat.sends",
		metric.WithDescription("Chat messages sent")); err != nil {
		c.sends, _ = noop.NewMeterProvider().Meter("").Int64Counter("noop")
	}
	if c.failures, err = opts.Meter.Int64Counter("assistant.chat.failures",
		metric.WithDescription("Chat messages that ended in an error turn")); err != nil {
		c.failures, _ = noop.NewMeterProvider().Meter("").Int64Counter("noop")
	}
	return c
}

// SessionID returns the session the controller talks to.
func (c *Controller) SessionID() string { return c.sessionID }

// OnChange registers fn to run after every change to the transcript, the
// draft or the in-flight flag. fn runs without the controller lock held.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// SetDraft replaces the pending input text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.notify()
}

// Draft returns the pending input text.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Turns returns a copy of the transcript.
func (c *Controller) Turns() []session.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// InFlight reports whether a question is waiting for its answer.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// SendDraft sends the current draft.
func (c *Controller) SendDraft(ctx context.Context) bool {
	return c.Send(ctx, c.Draft())
}

// Send appends the question to the transcript and issues the request in the
// background. It returns false, changing nothing, when the text is blank or
// another question is still in flight. Once issued, a request is not
// cancelled by ctx; Wait blocks until it settles.
func (c *Controller) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	c.draft = ""
	c.turns = append(c.turns, session.Turn{Role: session.RoleUser, Content: text, At: time.Now()})
	c.wg.Add(1)
	c.mu.Unlock()
	c.notify()

	reqCtx := context.WithoutCancel(ctx)
	go c.exchange(reqCtx, text)
	return true
}

// Wait blocks until no question is in flight.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) exchange(ctx context.Context, text string) {
	defer c.wg.Done()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := c.client.SendChatMessage(ctx, c.sessionID, text)
	c.sends.Add(ctx, 1)

	turn := session.Turn{Role: session.RoleAssistant, Content: answer, At: time.Now()}
	if err != nil {
		turn.Role = session.RoleError
		turn.Content = errorText(err)
		c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", errorKind(err))))
		c.logger.Error("chat message failed", "error", err, "elapsed", time.Since(start).String())
	} else {
		c.logger.Info("chat answer received", "question_len", len(text), "answer_len", len(answer),
			"elapsed", time.Since(start).String())
	}

	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.inFlight = false
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	subs := make([]func(), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func errorText(err error) string {
	var se *api.ServerError
	if errors.As(err, &se) {
		return api.UserMessage(err)
	}
	if errors.Is(err, api.ErrNotFound) {
		return api.UserMessage(err)
	}
	return ConnectionErrorMessage
}

func errorKind(err error) string {
	var (
		se *api.ServerError
		te *api.TransportError
	)
	switch {
	case errors.As(err, &se):
		return "server"
	case errors.Is(err, api.ErrNotFound):
		return "not_found"
	case errors.As(err, &te):
		return "transport"
	default:
		return "other"
	}
}
