package session

import (
	"fmt"
	"time"
)

// Status is the server-reported lifecycle state of a session
type Status string

const (
	StatusCreated    Status = "created"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Valid reports whether s is a status the client knows how to handle.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusUploading, StatusProcessing, StatusReady, StatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further progress is expected.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Step is a named phase of backend document ingestion
type Step string

const (
	StepNone               Step = ""
	StepInitialization     Step = "initialization"
	StepListing            Step = "listing"
	StepExtraction         Step = "extraction"
	StepExtractionComplete Step = "extraction_complete"
	StepChunking           Step = "chunking"
	StepChunkingComplete   Step = "chunking_complete"
	StepIndexing           Step = "indexing"
	StepComplete           Step = "complete"
)

var stepOrder = []Step{
	StepNone,
	StepInitialization,
	StepListing,
	StepExtraction,
	StepExtractionComplete,
	StepChunking,
	StepChunkingComplete,
	StepIndexing,
	StepComplete,
}

// Rank returns the position of the step in the processing pipeline, or -1
// for an unknown step.
func (s Step) Rank() int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is empty or one of the known steps.
func (s Step) Valid() bool {
	return s.Rank() >= 0
}

// Label is the short human-readable name shown next to the progress bar.
func (s Step) Label() string {
	switch s {
	case StepInitialization:
		return "Initializing"
	case StepListing:
		return "Listing files"
	case StepExtraction:
		return "Extracting text"
	case StepExtractionComplete:
		return "Extraction done"
	case StepChunking:
		return "Splitting text"
	case StepChunkingComplete:
		return "Splitting done"
	case StepIndexing:
		return "Indexing"
	case StepComplete:
		return "Done"
	default:
		return "Waiting"
	}
}

// Session mirrors the server record for one upload-to-chat workflow.
// The client only ever reads these fields.
type Session struct {
	ID             string   `json:"id"`
	VehicleName    string   `json:"vehicle_name"`
	Status         Status   `json:"status"`
	CurrentStep    Step     `json:"current_step"`
	Progress       int      `json:"progress"`
	Message        string   `json:"message"`
	TotalPages     int      `json:"total_pages"`
	ProcessedPages int      `json:"processed_pages"`
	Error          string   `json:"error,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	PDFFiles       []string `json:"pdf_files,omitempty"`
}

// Validate checks the invariants a well-formed server record must satisfy.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session has no id")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown session status %q", s.Status)
	}
	if !s.CurrentStep.Valid() {
		return fmt.Errorf("unknown processing step %q", s.CurrentStep)
	}
	if s.Progress < 0 || s.Progress > 100 {
		return fmt.Errorf("progress %d out of range", s.Progress)
	}
	if s.TotalPages < 0 || s.ProcessedPages < 0 {
		return fmt.Errorf("negative page count")
	}
	return nil
}

// Role attributes a turn in the visible conversation
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Turn represents a single entry in the conversation
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// UploadStatus tracks one file while the upload orchestrator runs
type UploadStatus string

const (
	UploadQueued    UploadStatus = "queued"
	UploadUploading UploadStatus = "uploading"
	UploadDone      UploadStatus = "done"
	UploadFailed    UploadStatus = "failed"
)
