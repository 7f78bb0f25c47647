// Package session holds per-conversation state: the ordered message history,
// the resolved customer identity, and any action suspended on confirmation.
package session

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool marks a structured tool result folded back into the history.
	RoleTool Role = "tool"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolName is set on RoleTool messages to the action that produced them.
	ToolName string `json:"tool_name,omitempty"`
}

// PendingAction is a sensitive action suspended before execution, awaiting
// an external approve/deny signal. It is persisted with the session so a
// suspension survives process restarts.
type PendingAction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Session is one customer conversation. CustomerID may be empty until the
// caller resolves an identity; tools that need one fail until it is set.
type Session struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id,omitempty"`
	Messages   []Message      `json:"messages"`
	Pending    *PendingAction `json:"pending,omitempty"`
}

// New creates an empty session.
func New(id, customerID string) *Session {
	return &Session{ID: id, CustomerID: customerID}
}

// Append adds a message to the history. History is append-only within a
// turn cycle.
func (s *Session) Append(m Message) {
	s.Messages = append(s.Messages, m)
}

// Store persists sessions across turns and suspensions.
type Store interface {
	// Load returns the session with the given id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)
	// Save persists the full session state.
	Save(ctx context.Context, s *Session) error
}
