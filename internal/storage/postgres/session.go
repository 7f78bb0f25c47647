package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore persists conversation state as JSONB, so an action suspended
// on confirmation survives a process restart.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore returns a SessionStore that uses the given pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Load returns the session with the given id, or session.ErrNotFound.
func (s *SessionStore) Load(ctx context.Context, id string) (*session.Session, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM sessions WHERE id = $1`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("loading session %q: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(state, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %q: %w", id, err)
	}
	return &sess, nil
}

// Save upserts the full session state.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %q: %w", sess.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, customer_id, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET
		     customer_id = EXCLUDED.customer_id,
		     state = EXCLUDED.state,
		     updated_at = now()`,
		sess.ID, sess.CustomerID, state)
	if err != nil {
		return fmt.Errorf("saving session %q: %w", sess.ID, err)
	}
	return nil
}
