// Package upload validates a document selection and runs the
// create → upload → process sequence that starts a session.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/session"
)

// ErrBusy is returned when Run is called while a previous run is active.
var ErrBusy = errors.New("an upload is already in progress")

// Client is the subset of the session API the orchestrator needs.
type Client interface {
	CreateSession(ctx context.Context, vehicleName string) (*session.Session, error)
	UploadFile(ctx context.Context, sessionID string, f api.File) error
	StartProcessing(ctx context.Context, sessionID string) error
}

// StatusFunc observes per-file status changes, keyed by file name.
type StatusFunc func(name string, status session.UploadStatus)

// FileError reports which file stopped the upload sequence.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("upload of %s failed: %s", e.Name, api.UserMessage(e.Err))
}

func (e *FileError) Unwrap() error { return e.Err }

// Result is what a successful run hands off to the progress monitor.
type Result struct {
	Session *session.Session
	// ProcessErr is set when the processing trigger failed. The run still
	// succeeds; the monitor reports whether processing ever started.
	ProcessErr error
}

// Orchestrator runs one setup sequence at a time.
type Orchestrator struct {
	client Client
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates an orchestrator over the given client.
func New(client Client, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{client: client, logger: logger}
}

// Run validates the input, creates a session, uploads files one by one in
// order and triggers processing. The first failing upload aborts the rest.
func (o *Orchestrator) Run(ctx context.Context, vehicleName string, files []api.File, onStatus StatusFunc) (*Result, error) {
	if onStatus == nil {
		onStatus = func(string, session.UploadStatus) {}
	}
	if err := validate(vehicleName, files); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	sess, err := o.client.CreateSession(ctx, vehicleName)
	if err != nil {
		o.logger.Error("failed to create session", "vehicle", vehicleName, "error", err)
		return nil, fmt.Errorf("could not create session: %w", err)
	}
	o.logger.Info("starting uploads", "session_id", sess.ID, "files", len(files))

	for _, f := range files {
		onStatus(f.Name, session.UploadQueued)
	}
	for i, f := range files {
		onStatus(f.Name, session.UploadUploading)
		if err := o.client.UploadFile(ctx, sess.ID, f); err != nil {
			onStatus(f.Name, session.UploadFailed)
			o.logger.Error("upload failed", "session_id", sess.ID, "file", f.Name, "index", i, "error", err)
			return nil, &FileError{Index: i, Name: f.Name, Err: err}
		}
		onStatus(f.Name, session.UploadDone)
	}

	res := &Result{Session: sess}
	if err := o.client.StartProcessing(ctx, sess.ID); err != nil {
		o.logger.Warn("processing trigger failed, relying on status polling", "session_id", sess.ID, "error", err)
		res.ProcessErr = err
	}
	return res, nil
}

func validate(vehicleName string, files []api.File) error {
	if strings.TrimSpace(vehicleName) == "" {
		return &api.ValidationError{Kind: api.InvalidInput, Field: "vehicle name", Message: "please enter the name of your vehicle"}
	}
	if len(files) == 0 {
		return &api.ValidationError{Kind: api.InvalidInput, Field: "files", Message: "please select at least one PDF file"}
	}
	for _, f := range files {
		if err := api.CheckFile(f); err != nil {
			return err
		}
	}
	return nil
}
