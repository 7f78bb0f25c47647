package agent

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

// ErrNoPendingAction is returned when a confirmation signal arrives while
// the gate is idle. Such signals are rejected, never silently ignored.
var ErrNoPendingAction = errors.New("no action awaiting confirmation")

// GateState is the confirmation gate's state for a session.
type GateState int

const (
	GateIdle GateState = iota
	GateAwaitingConfirmation
)

// Gate suspends sensitive actions pending an external approve/deny signal.
// The pending action lives on the session, persisted through the session
// store, so suspension is indefinite and survives restarts. The gate holds
// no state of its own.
type Gate struct {
	sessions session.Store
}

// NewGate creates a Gate backed by the given session store.
func NewGate(sessions session.Store) *Gate {
	return &Gate{sessions: sessions}
}

// State reports whether the session has an action awaiting confirmation.
func (g *Gate) State(s *session.Session) GateState {
	if s.Pending != nil {
		return GateAwaitingConfirmation
	}
	return GateIdle
}

// Suspend records the pending action and persists the session. No further
// decision-maker calls or store mutations happen for this session until the
// gate is resolved or abandoned.
func (g *Gate) Suspend(ctx context.Context, s *session.Session, pending *session.PendingAction) error {
	s.Pending = pending
	if err := g.sessions.Save(ctx, s); err != nil {
		return errors.Wrap(err, "persist pending action")
	}
	return nil
}

// Resolve consumes the pending action. On approval the caller receives the
// original action for execution; on denial the action is discarded. Either
// way the gate returns to idle. Resolving an idle gate fails with
// ErrNoPendingAction.
func (g *Gate) Resolve(ctx context.Context, s *session.Session, approve bool) (*session.PendingAction, error) {
	if s.Pending == nil {
		return nil, ErrNoPendingAction
	}

	pending := s.Pending
	s.Pending = nil
	if err := g.sessions.Save(ctx, s); err != nil {
		// Restore in-memory state so a retry sees the suspension.
		s.Pending = pending
		return nil, errors.Wrap(err, "clear pending action")
	}

	if !approve {
		return nil, nil
	}
	return pending, nil
}

// Abandon discards the pending action without side effects, for example on
// conversation abandonment. Abandoning an idle gate is a no-op.
func (g *Gate) Abandon(ctx context.Context, s *session.Session) error {
	if s.Pending == nil {
		return nil
	}
	s.Pending = nil
	if err := g.sessions.Save(ctx, s); err != nil {
		return errors.Wrap(err, "discard pending action")
	}
	return nil
}
