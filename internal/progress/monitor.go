// Package progress polls a session while the backend processes its
// documents and decides when the chat can take over.
package progress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/session"
)

// State of the monitor. Errored and HandedOff are terminal.
type State int

const (
	Loading State = iota
	Processing
	Ready
	Errored
	HandedOff
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Processing:
		return "processing"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	case HandedOff:
		return "handed_off"
	default:
		return "unknown"
	}
}

// Update is one observation published to the consumer.
type Update struct {
	State State
	// Session is the freshest poll result, nil until the first poll resolves.
	Session *session.Session
	// Step is the furthest step seen; it never moves backwards.
	Step session.Step
	// Err explains an Errored state.
	Err string
	// NotFound is set when the session id did not resolve.
	NotFound bool
}

// StatusGetter is the one call the monitor makes.
type StatusGetter interface {
	GetStatus(ctx context.Context, sessionID string) (*session.Session, error)
}

// Options tune the monitor. A zero Interval falls back to one second; a
// zero HandoffDelay hands off right after Ready.
type Options struct {
	Interval     time.Duration
	HandoffDelay time.Duration
	// NotStartedTimeout errors the monitor when the session never leaves
	// created. Zero disables the check.
	NotStartedTimeout time.Duration
	// Retries is the number of consecutive failed polls tolerated.
	Retries int
	Logger  *slog.Logger
	Meter   metric.Meter
	// OnUpdate, if set, sees every update before it is sent on Updates.
	OnUpdate func(Update)
}

const (
	defaultInterval     = time.Second
	defaultHandoffDelay = time.Second
)

var errNotStarted = errors.New("processing never started")

// Monitor runs one poll loop for one session.
type Monitor struct {
	client    StatusGetter
	sessionID string
	opts      Options
	logger    *slog.Logger

	polls    metric.Int64Counter
	failures metric.Int64Counter

	updates chan Update
}

// New creates a monitor. Call Run to start polling.
func New(client StatusGetter, sessionID string, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.HandoffDelay < 0 {
		opts.HandoffDelay = defaultHandoffDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("")
	}
	m := &Monitor{
		client:    client,
		sessionID: sessionID,
		opts:      opts,
		logger:    opts.Logger.With("session_id", sessionID),
		updates:   make(chan Update, 8),
	}
	m.polls, _ = opts.Meter.Int64Counter("assistant.status.polls",
		metric.WithDescription("Status polls issued by the progress monitor"))
	m.failures, _ = opts.Meter.Int64Counter("assistant.status.poll_failures",
		metric.WithDescription("Status polls that failed at the transport or API level"))
	if m.polls == nil {
		m.polls, _ = noop.NewMeterProvider().Meter("").Int64Counter("noop")
	}
	if m.failures == nil {
		m.failures, _ = noop.NewMeterProvider().Meter("").Int64Counter("noop")
	}
	return m
}

// Updates delivers every published update. It is closed when Run returns.
func (m *Monitor) Updates() <-chan Update {
	return m.updates
}

// Run polls until the session is handed off, errors, or ctx is cancelled.
// Polls are sequential: the next one is scheduled only after the previous
// response arrives. It returns the last published update.
func (m *Monitor) Run(ctx context.Context) Update {
	defer close(m.updates)

	last := Update{State: Loading}
	if !m.publish(ctx, last) {
		return last
	}

	started := time.Now()
	failed := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("monitor cancelled", "state", last.State.String())
			return last
		case <-timer.C:
		}

		sess, err := m.client.GetStatus(ctx, m.sessionID)
		m.polls.Add(ctx, 1)
		if ctx.Err() != nil {
			return last
		}

		if err != nil {
			m.failures.Add(ctx, 1)
			failed++
			if failed <= m.opts.Retries {
				m.logger.Warn("status poll failed, retrying", "attempt", failed, "error", err)
				timer.Reset(m.opts.Interval)
				continue
			}
			m.logger.Error("status poll failed", "error", err)
			last = m.failed(last, err)
			m.publish(ctx, last)
			return last
		}
		failed = 0

		last = m.apply(last, sess)
		if last.State == Processing && m.notStarted(sess, started) {
			m.logger.Warn("session never left created state", "waited", time.Since(started).String())
			last = m.failed(last, errNotStarted)
		}
		if !m.publish(ctx, last) {
			return last
		}

		switch last.State {
		case Errored:
			return last
		case Ready:
			m.logger.Info("session ready, handing off", "delay", m.opts.HandoffDelay.String())
			select {
			case <-ctx.Done():
				return last
			case <-time.After(m.opts.HandoffDelay):
			}
			last.State = HandedOff
			m.publish(ctx, last)
			return last
		}

		timer.Reset(m.opts.Interval)
	}
}

// apply folds a fresh poll result into the view. The snapshot is replaced
// wholesale; only the rendered step is kept monotonic.
func (m *Monitor) apply(prev Update, sess *session.Session) Update {
	next := Update{Session: sess, Step: prev.Step}
	if sess.CurrentStep.Rank() > prev.Step.Rank() {
		next.Step = sess.CurrentStep
	}

	switch sess.Status {
	case session.StatusReady:
		next.State = Ready
	case session.StatusError:
		next.State = Errored
		next.Err = sess.Error
		if next.Err == "" {
			next.Err = "An error occurred during processing"
		}
	default:
		next.State = Processing
	}

	if next.State != prev.State {
		m.logger.Info("monitor state changed", "from", prev.State.String(), "to", next.State.String(),
			"step", string(sess.CurrentStep), "progress", sess.Progress)
	}
	return next
}

func (m *Monitor) failed(prev Update, err error) Update {
	next := prev
	next.State = Errored
	switch {
	case errors.Is(err, errNotStarted):
		next.Err = "Processing never started. Please upload your documents again."
	case errors.Is(err, api.ErrNotFound):
		next.NotFound = true
		next.Err = "Session not found"
	default:
		var se *api.ServerError
		if errors.As(err, &se) {
			next.Err = api.UserMessage(err)
		} else {
			next.Err = "Unable to contact the server"
		}
	}
	return next
}

func (m *Monitor) notStarted(sess *session.Session, started time.Time) bool {
	if m.opts.NotStartedTimeout <= 0 {
		return false
	}
	waiting := sess.Status == session.StatusCreated || sess.Status == session.StatusUploading
	return waiting && sess.CurrentStep == session.StepNone && time.Since(started) >= m.opts.NotStartedTimeout
}

func (m *Monitor) publish(ctx context.Context, u Update) bool {
	if m.opts.OnUpdate != nil {
		m.opts.OnUpdate(u)
	}
	select {
	case m.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
