// Package handler exposes the conversational HTTP surface: inbound customer
// messages, the confirmation resume signal, and a catalog listing.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/agent"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

// Handler serves the agent API. All conversation logic lives in the
// orchestrator; the handler only translates HTTP to turns and back.
type Handler struct {
	orch     *agent.Orchestrator
	products product.Repository
}

// NewHandler constructs a Handler.
func NewHandler(orch *agent.Orchestrator, products product.Repository) *Handler {
	return &Handler{orch: orch, products: products}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.Chat)
	mux.HandleFunc("POST /confirm", h.Confirm)
	mux.HandleFunc("DELETE /sessions/{id}", h.AbandonSession)
	mux.HandleFunc("GET /catalog", h.Catalog)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

// mapTurnError converts orchestrator errors to HTTP responses.
func mapTurnError(w http.ResponseWriter, r *http.Request, err error) {
	var classErr *agent.ClassificationError

	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, agent.ErrNoPendingAction):
		writeError(w, http.StatusConflict, "no action awaiting confirmation")
	case errors.Is(err, agent.ErrAwaitingConfirmation):
		writeError(w, http.StatusConflict, "session is awaiting confirmation; resolve it first")
	case errors.As(err, &classErr):
		// The decision-maker proposed something outside the vocabulary.
		zctx.From(r.Context()).Error("Action classification failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, classErr.Error())
	default:
		zctx.From(r.Context()).Error("Turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
