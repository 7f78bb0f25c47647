package memory

import (
	"encoding/json"
	"fmt"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

// Sessions round-trip through JSON, the same representation the postgres
// store uses, which doubles as a cheap deep copy.

func marshalSession(sess *session.Session) ([]byte, error) {
	state, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encoding session %q: %w", sess.ID, err)
	}
	return state, nil
}

func unmarshalSession(state []byte, sess *session.Session) error {
	if err := json.Unmarshal(state, sess); err != nil {
		return fmt.Errorf("decoding session: %w", err)
	}
	return nil
}
