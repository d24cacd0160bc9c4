package api

import (
	"io"

	"github.com/aminssutt/AurisTraining/internal/session"
)

// PDFContentType is the only content type accepted for upload.
const PDFContentType = "application/pdf"

// CreateSessionRequest represents the request body for POST /session/create
type CreateSessionRequest struct {
	VehicleName string `json:"vehicle_name"`
}

// ChatRequest represents the request body for POST /session/{id}/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// Envelope is the common part of every response. Success is a pointer so a
// missing field can be told apart from false.
type Envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SessionResponse represents the response of create and status calls
type SessionResponse struct {
	Envelope
	Session *session.Session `json:"session,omitempty"`
}

// ChatResponse represents the response of the chat call
type ChatResponse struct {
	Envelope
	Response *string `json:"response,omitempty"`
}

// File is one local document to upload.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}
