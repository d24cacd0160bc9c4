// Package route decides which screen a session id leads to.
package route

import (
	"context"
	"errors"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/session"
)

// Kind names a screen.
type Kind int

const (
	Upload Kind = iota
	Processing
	Chat
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Upload:
		return "upload"
	case Processing:
		return "processing"
	case Chat:
		return "chat"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Route is a screen plus the session it is bound to.
type Route struct {
	Kind      Kind
	SessionID string
	// Session is the record that justified entering Chat.
	Session *session.Session
	// Message is set for NotFound routes.
	Message string
}

const (
	sessionNotFound   = "Session not found"
	sessionLoadFailed = "Unable to load the session"
)

// StatusGetter is the one call the chat gate makes.
type StatusGetter interface {
	GetStatus(ctx context.Context, sessionID string) (*session.Session, error)
}

// Home is the upload screen.
func Home() Route { return Route{Kind: Upload} }

// EnterProcessing is unconditional; the monitor sorts out the status.
func EnterProcessing(sessionID string) Route {
	return Route{Kind: Processing, SessionID: sessionID}
}

// EnterChat checks the session before showing the chat. A session that is
// not ready yet goes back to the processing screen.
func EnterChat(ctx context.Context, client StatusGetter, sessionID string) Route {
	if sessionID == "" {
		return Route{Kind: NotFound, Message: sessionNotFound}
	}
	sess, err := client.GetStatus(ctx, sessionID)
	if err != nil {
		var se *api.ServerError
		if errors.Is(err, api.ErrNotFound) || errors.As(err, &se) {
			return Route{Kind: NotFound, SessionID: sessionID, Message: sessionNotFound}
		}
		return Route{Kind: NotFound, SessionID: sessionID, Message: sessionLoadFailed}
	}
	if sess.Status != session.StatusReady {
		return EnterProcessing(sessionID)
	}
	return Route{Kind: Chat, SessionID: sessionID, Session: sess}
}
