// Package queue publishes identity lifecycle events to the message bus and
// consumes them back.  Publishing is best effort: nothing in here ever
// returns an error to the request path.
package queue

import (
	"encoding/json"
	"time"
)

// Lifecycle event names.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventUserLoggedOut  = "user.logged_out"
)

// Envelope is the wire format of every event.
type Envelope struct {
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// UserRegistered is published after a principal is created.
type UserRegistered struct {
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// UserLoggedIn is published after a session is opened.
type UserLoggedIn struct {
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username"`
	SessionID   string `json:"session_id"`
	ClientAddr  string `json:"client_addr,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// UserLoggedOut is published after a session row is deleted.
type UserLoggedOut struct {
	PrincipalID string `json:"principal_id"`
	SessionID   string `json:"session_id"`
}
