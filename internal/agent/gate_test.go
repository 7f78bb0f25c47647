package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/storage/memory"
)

func newTestGate(t *testing.T) (*Gate, *session.Session, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	sess := session.New("s-1", "c-1")
	require.NoError(t, store.Save(context.Background(), sess))
	return NewGate(store), sess, store
}

func pendingCreateOrder() *session.PendingAction {
	return &session.PendingAction{
		Name:      NameCreateOrder,
		Arguments: json.RawMessage(`{"items":[{"product_name":"banana","quantity":1}]}`),
	}
}

func TestGate_SuspendAndApprove(t *testing.T) {
	gate, sess, store := newTestGate(t)
	ctx := context.Background()

	assert.Equal(t, GateIdle, gate.State(sess))

	require.NoError(t, gate.Suspend(ctx, sess, pendingCreateOrder()))
	assert.Equal(t, GateAwaitingConfirmation, gate.State(sess))

	// The suspension is persisted: a reload sees the pending action.
	reloaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Pending)
	assert.Equal(t, NameCreateOrder, reloaded.Pending.Name)

	pending, err := gate.Resolve(ctx, sess, true)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, NameCreateOrder, pending.Name)
	assert.Equal(t, GateIdle, gate.State(sess))
}

func TestGate_Deny(t *testing.T) {
	gate, sess, store := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, gate.Suspend(ctx, sess, pendingCreateOrder()))

	pending, err := gate.Resolve(ctx, sess, false)
	require.NoError(t, err)
	assert.Nil(t, pending, "denied action must not be handed back for execution")
	assert.Equal(t, GateIdle, gate.State(sess))

	reloaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Pending)
}

func TestGate_ResolveIdleRejected(t *testing.T) {
	gate, sess, _ := newTestGate(t)

	_, err := gate.Resolve(context.Background(), sess, true)
	require.ErrorIs(t, err, ErrNoPendingAction)

	_, err = gate.Resolve(context.Background(), sess, false)
	require.ErrorIs(t, err, ErrNoPendingAction)
}

func TestGate_Abandon(t *testing.T) {
	gate, sess, store := newTestGate(t)
	ctx := context.Background()

	// Abandoning an idle gate is a no-op.
	require.NoError(t, gate.Abandon(ctx, sess))

	require.NoError(t, gate.Suspend(ctx, sess, pendingCreateOrder()))
	require.NoError(t, gate.Abandon(ctx, sess))
	assert.Equal(t, GateIdle, gate.State(sess))

	reloaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Pending)
}
