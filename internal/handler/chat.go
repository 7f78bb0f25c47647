package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/agent"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

type chatRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Message    string `json:"message"`
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
	Decision  string `json:"decision"`
}

type pendingJSON struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type turnResponse struct {
	SessionID string       `json:"session_id"`
	Status    string       `json:"status"`
	Reply     string       `json:"reply,omitempty"`
	Pending   *pendingJSON `json:"pending_action,omitempty"`
}

func turnToResponse(res *agent.TurnResult) turnResponse {
	out := turnResponse{
		SessionID: res.SessionID,
		Status:    string(res.Status),
		Reply:     res.Reply,
	}
	if res.Pending != nil {
		out.Pending = &pendingJSON{
			Name:      res.Pending.Name,
			Arguments: res.Pending.Arguments,
		}
	}
	return out
}

// Chat handles an inbound customer message and runs one turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := h.orch.HandleMessage(r.Context(), req.SessionID, req.CustomerID, req.Message)
	if err != nil {
		mapTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnToResponse(res))
}

// Confirm delivers the approve/deny signal for a suspended turn. A signal
// for an idle session is rejected with 409.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	var approve bool
	switch req.Decision {
	case "approve":
		approve = true
	case "deny":
		approve = false
	default:
		writeError(w, http.StatusBadRequest, `decision must be "approve" or "deny"`)
		return
	}

	res, err := h.orch.Resume(r.Context(), req.SessionID, approve)
	if err != nil {
		mapTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnToResponse(res))
}

// AbandonSession discards any pending action for the session. The suspended
// action never executed, so no compensation happens.
func (h *Handler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := h.orch.Abandon(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		mapTurnError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type catalogProduct struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

type catalogResponse struct {
	Products []catalogProduct `json:"products"`
}

// Catalog lists the in-stock catalog directly, bypassing the conversation.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	res, err := h.products.Search(r.Context(), product.SearchFilter{})
	if err != nil {
		mapTurnError(w, r, err)
		return
	}

	out := catalogResponse{Products: make([]catalogProduct, len(res.Products))}
	for i, p := range res.Products {
		out.Products[i] = catalogProduct{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
			Price:       p.Price.InexactFloat64(),
			Stock:       p.Quantity,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
