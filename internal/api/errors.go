package api

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by errors.Is for any NotFoundError.
var ErrNotFound = errors.New("session not found")

// ValidationKind narrows down why input was rejected.
type ValidationKind string

const (
	InvalidInput    ValidationKind = "invalid_input"
	UnsupportedType ValidationKind = "unsupported_type"
	SizeExceeded    ValidationKind = "size_exceeded"
)

// ValidationError is bad user input. Most kinds are caught before a request
// is made; SizeExceeded comes back from the server.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransportError covers unreachable servers and responses that do not
// match the expected envelope.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a well-formed response reporting success:false. Message is
// the server text, shown to the user verbatim.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// NotFoundError means the session id does not resolve on the server.
type NotFoundError struct {
	SessionID string
	Message   string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("session %s not found", e.SessionID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UserMessage turns any client error into text fit for the screen.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		se *ServerError
		nf *NotFoundError
		te *TransportError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &se):
		if se.Message == "" {
			return "The server reported an error"
		}
		return se.Message
	case errors.As(err, &nf):
		return "Session not found"
	case errors.As(err, &te):
		return "Unable to reach the server"
	default:
		return err.Error()
	}
}
