package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

// Sentinel errors for turn handling.
var (
	// ErrAwaitingConfirmation is returned when a new message arrives while
	// the session has an action suspended on confirmation.
	ErrAwaitingConfirmation = errors.New("session is awaiting confirmation")
)

// Decision is one step from the decision-maker: either a direct response
// (Action nil, terminal for the turn) or a proposed action.
type Decision struct {
	Content string
	Action  *ProposedAction
}

// ProposedAction is an action as proposed on the wire, before vocabulary
// checking and typed decoding.
type ProposedAction struct {
	Name      string
	Arguments json.RawMessage
}

// DecisionMaker is the external reasoning service, consumed as a black box:
// given the session so far, it proposes the next action or a final response.
type DecisionMaker interface {
	Decide(ctx context.Context, s *session.Session) (*Decision, error)
}

// TurnStatus describes how a turn ended.
type TurnStatus string

const (
	// StatusResponded means a user-facing response was produced.
	StatusResponded TurnStatus = "responded"
	// StatusAwaitingConfirmation means the turn is suspended on a sensitive
	// action and must be resumed with an approve/deny signal.
	StatusAwaitingConfirmation TurnStatus = "awaiting_confirmation"
)

// TurnResult is the outcome of one turn.
type TurnResult struct {
	SessionID string
	Status    TurnStatus
	// Reply is the user-facing response when Status is StatusResponded.
	Reply string
	// Pending describes the suspended action when Status is
	// StatusAwaitingConfirmation.
	Pending *session.PendingAction
}

const (
	// rePromptMessage is injected when the decision-maker returns an
	// action-free response with empty content.
	rePromptMessage = "Respond with a real output."
	// fallbackReply ends the turn once the re-prompt ceiling is reached.
	fallbackReply = "I'm sorry, I wasn't able to come up with a response. Could you rephrase your request?"

	defaultMaxEmptyRetries = 3
)

// Orchestrator drives the conversation loop: obtain a decision, classify it,
// execute or gate the action, fold the result back, repeat until a terminal
// response. One orchestrator instance serves many sessions; each session's
// turns are sequential.
type Orchestrator struct {
	dm       DecisionMaker
	exec     *Executor
	gate     *Gate
	sessions session.Store

	maxEmptyRetries int
}

// NewOrchestrator wires the loop. maxEmptyRetries bounds the re-prompt cycle
// for empty decision-maker output; values < 1 fall back to the default.
func NewOrchestrator(dm DecisionMaker, exec *Executor, gate *Gate, sessions session.Store, maxEmptyRetries int) *Orchestrator {
	if maxEmptyRetries < 1 {
		maxEmptyRetries = defaultMaxEmptyRetries
	}
	return &Orchestrator{
		dm:              dm,
		exec:            exec,
		gate:            gate,
		sessions:        sessions,
		maxEmptyRetries: maxEmptyRetries,
	}
}

// HandleMessage runs one turn for an inbound customer message. The session
// is created on first contact. A session suspended on confirmation rejects
// new messages until resolved or abandoned.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, customerID, text string) (*TurnResult, error) {
	sess, err := o.loadOrCreate(ctx, sessionID, customerID)
	if err != nil {
		return nil, err
	}
	if o.gate.State(sess) == GateAwaitingConfirmation {
		return nil, ErrAwaitingConfirmation
	}

	sess.Append(session.Message{Role: session.RoleUser, Content: text})
	return o.runLoop(ctx, sess)
}

// Resume delivers the external confirmation signal for a suspended turn.
// Approval executes the original action with its original parameters; denial
// discards it and folds a cancellation notice into the session. Either way
// the loop continues until a terminal response.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, approve bool) (*TurnResult, error) {
	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pending, err := o.gate.Resolve(ctx, sess, approve)
	if err != nil {
		return nil, err
	}

	if pending == nil {
		// Denied: no store state was touched; tell the decision-maker.
		sess.Append(session.Message{
			Role:     session.RoleTool,
			ToolName: NameCreateOrder,
			Content:  `{"status":"error","message":"Action cancelled: the customer declined the order."}`,
		})
		zctx.From(ctx).Info("Sensitive action denied",
			zap.String("session_id", sess.ID))
		return o.runLoop(ctx, sess)
	}

	act, err := ParseAction(pending.Name, pending.Arguments)
	if err != nil {
		return nil, errors.Wrap(err, "parse pending action")
	}

	res, err := o.exec.Execute(ctx, sess.CustomerID, act)
	if err != nil {
		return nil, errors.Wrap(err, "execute confirmed action")
	}
	sess.Append(session.Message{
		Role:     session.RoleTool,
		ToolName: pending.Name,
		Content:  string(res.Body),
	})
	zctx.From(ctx).Info("Sensitive action executed",
		zap.String("session_id", sess.ID),
		zap.String("action", pending.Name),
		zap.Bool("ok", res.OK))
	return o.runLoop(ctx, sess)
}

// Abandon discards any pending action and persists the session. The
// suspended action never executed, so there is nothing to compensate.
func (o *Orchestrator) Abandon(ctx context.Context, sessionID string) error {
	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	return o.gate.Abandon(ctx, sess)
}

// runLoop is the AwaitingAction → Classifying → execute-or-gate cycle. It
// returns when a terminal response is produced or a sensitive action
// suspends the turn.
func (o *Orchestrator) runLoop(ctx context.Context, sess *session.Session) (*TurnResult, error) {
	lg := zctx.From(ctx).With(zap.String("session_id", sess.ID))
	emptyRetries := 0

	for {
		decision, err := o.dm.Decide(ctx, sess)
		if err != nil {
			return nil, errors.Wrap(err, "decision-maker")
		}

		if decision.Action == nil {
			if strings.TrimSpace(decision.Content) == "" {
				if emptyRetries >= o.maxEmptyRetries {
					lg.Warn("Empty responses exhausted retries, falling back",
						zap.Int("retries", emptyRetries))
					return o.respond(ctx, sess, fallbackReply)
				}
				emptyRetries++
				sess.Append(session.Message{Role: session.RoleUser, Content: rePromptMessage})
				continue
			}
			return o.respond(ctx, sess, decision.Content)
		}

		act, err := ParseAction(decision.Action.Name, decision.Action.Arguments)
		if err != nil {
			// Fatal to the turn: the vocabulary is fixed, no transaction
			// was opened.
			return nil, err
		}

		if decision.Content != "" {
			sess.Append(session.Message{Role: session.RoleAssistant, Content: decision.Content})
		}

		switch Classify(act) {
		case Sensitive:
			pending := &session.PendingAction{
				Name:      decision.Action.Name,
				Arguments: decision.Action.Arguments,
			}
			if err := o.gate.Suspend(ctx, sess, pending); err != nil {
				return nil, err
			}
			lg.Info("Turn suspended on confirmation",
				zap.String("action", pending.Name))
			return &TurnResult{
				SessionID: sess.ID,
				Status:    StatusAwaitingConfirmation,
				Pending:   pending,
			}, nil

		default: // Safe
			res, err := o.exec.Execute(ctx, sess.CustomerID, act)
			if err != nil {
				return nil, errors.Wrapf(err, "execute %s", decision.Action.Name)
			}
			sess.Append(session.Message{
				Role:     session.RoleTool,
				ToolName: decision.Action.Name,
				Content:  string(res.Body),
			})
			if err := o.sessions.Save(ctx, sess); err != nil {
				return nil, errors.Wrap(err, "save session")
			}
			lg.Debug("Safe action executed",
				zap.String("action", decision.Action.Name),
				zap.Bool("ok", res.OK))
		}
	}
}

// respond finalizes the turn with a user-facing reply.
func (o *Orchestrator) respond(ctx context.Context, sess *session.Session, reply string) (*TurnResult, error) {
	sess.Append(session.Message{Role: session.RoleAssistant, Content: reply})
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return &TurnResult{
		SessionID: sess.ID,
		Status:    StatusResponded,
		Reply:     reply,
	}, nil
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, sessionID, customerID string) (*session.Session, error) {
	if sessionID == "" {
		return session.New(uuid.New().String(), customerID), nil
	}
	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.New(sessionID, customerID), nil
		}
		return nil, errors.Wrap(err, "load session")
	}
	// Identity resolves once and sticks with the session.
	if sess.CustomerID == "" && customerID != "" {
		sess.CustomerID = customerID
	}
	return sess, nil
}
