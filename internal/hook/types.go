// Package hook runs external programs when kiosk attempts finish, for
// example to release a door strike after a successful login.
//
// A hook lives in its own directory under the hooks directory and is
// described by a hook.json manifest. It receives a Request as JSON on
// stdin and answers with a Response on stdout.
package hook

import (
	"encoding/json"
	"strings"
	"time"
)

// Manifest describes a hook and the events it subscribes to.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"` // "login.success", "login.*" or "*"
	Config      json.RawMessage `json:"config,omitempty"`
}

// Matches reports whether the hook subscribes to event.
func (m Manifest) Matches(event string) bool {
	kind, _, _ := strings.Cut(event, ".")
	for _, e := range m.Events {
		if e == "*" || e == event || e == kind+".*" {
			return true
		}
	}
	return false
}

// Attempt is the finished attempt a hook is told about. It never carries
// image data.
type Attempt struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Samples   int       `json:"samples"`
	CreatedAt time.Time `json:"created_at"`
}

// Event returns the attempt's event name, "<kind>.<outcome>".
func (a Attempt) Event() string {
	return a.Kind + "." + a.Outcome
}

// Request is written to a hook's stdin.
type Request struct {
	Event   string          `json:"event"`
	Attempt Attempt         `json:"attempt"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
