package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/agent"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/storage/memory"
)

type scriptedDM struct {
	script []agent.Decision
	calls  int
}

func (s *scriptedDM) Decide(_ context.Context, _ *session.Session) (*agent.Decision, error) {
	if s.calls >= len(s.script) {
		return &agent.Decision{Content: "out of script"}, nil
	}
	d := s.script[s.calls]
	s.calls++
	return &d, nil
}

func newTestServer(t *testing.T, dm agent.DecisionMaker) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Insert(context.Background(), product.Product{
		Name:     "banana",
		Category: "fruit",
		Price:    decimal.RequireFromString("3.00"),
		Quantity: 5,
	}))

	orch := agent.NewOrchestrator(dm, agent.NewExecutor(store, store), agent.NewGate(store), store, 3)

	mux := http.NewServeMux()
	NewHandler(orch, store).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestChat_TerminalReply(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedDM{script: []agent.Decision{
		{Content: "Hi there!"},
	}})

	resp, body := postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s-1", body["session_id"])
	assert.Equal(t, "responded", body["status"])
	assert.Equal(t, "Hi there!", body["reply"])
	assert.NotContains(t, body, "pending_action")
}

func TestChat_GeneratesSessionID(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedDM{script: []agent.Decision{
		{Content: "Hi!"},
	}})

	resp, body := postJSON(t, srv.URL+"/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["session_id"])
}

func TestChat_ValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedDM{})

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"session_id":"s-1","message":"  "}`},
		{"malformed body", `{"message":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postJSON(t, srv.URL+"/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestConfirm_Flow(t *testing.T) {
	srv, store := newTestServer(t, &scriptedDM{script: []agent.Decision{
		{Action: &agent.ProposedAction{
			Name:      agent.NameCreateOrder,
			Arguments: json.RawMessage(`{"items":[{"product_name":"banana","quantity":2}]}`),
		}},
		{Content: "Order placed!"},
	}})

	resp, body := postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"two bananas please"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_confirmation", body["status"])
	pending := body["pending_action"].(map[string]any)
	assert.Equal(t, agent.NameCreateOrder, pending["name"])
	assert.Equal(t, 5, store.Stock("banana"), "suspended action must not run")

	resp, body = postJSON(t, srv.URL+"/confirm", `{"session_id":"s-1","decision":"approve"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "responded", body["status"])
	assert.Equal(t, "Order placed!", body["reply"])
	assert.Equal(t, 3, store.Stock("banana"))
}

func TestConfirm_Deny(t *testing.T) {
	srv, store := newTestServer(t, &scriptedDM{script: []agent.Decision{
		{Action: &agent.ProposedAction{
			Name:      agent.NameCreateOrder,
			Arguments: json.RawMessage(`{"items":[{"product_name":"banana","quantity":2}]}`),
		}},
		{Content: "Okay, cancelled."},
	}})

	resp, _ := postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"two bananas"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/confirm", `{"session_id":"s-1","decision":"deny"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "responded", body["status"])
	assert.Equal(t, 5, store.Stock("banana"))
}

func TestConfirm_Rejections(t *testing.T) {
	srv, store := newTestServer(t, &scriptedDM{})
	require.NoError(t, store.Save(context.Background(), session.New("idle", "c-1")))

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"idle session", `{"session_id":"idle","decision":"approve"}`, http.StatusConflict},
		{"unknown session", `{"session_id":"nope","decision":"approve"}`, http.StatusNotFound},
		{"missing session id", `{"decision":"approve"}`, http.StatusBadRequest},
		{"bad decision", `{"session_id":"idle","decision":"maybe"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postJSON(t, srv.URL+"/confirm", tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestChat_WhileSuspendedConflicts(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedDM{script: []agent.Decision{
		{Action: &agent.ProposedAction{
			Name:      agent.NameCreateOrder,
			Arguments: json.RawMessage(`{"items":[{"product_name":"banana","quantity":1}]}`),
		}},
	}})

	resp, _ := postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"a banana"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"make it two"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAbandonSession(t *testing.T) {
	srv, store := newTestServer(t, &scriptedDM{script: []agent.Decision{
		{Action: &agent.ProposedAction{
			Name:      agent.NameCreateOrder,
			Arguments: json.RawMessage(`{"items":[{"product_name":"banana","quantity":1}]}`),
		}},
		{Content: "Hello again!"},
	}})

	resp, _ := postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"a banana"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/s-1", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Equal(t, 5, store.Stock("banana"))

	// The session is usable again after abandoning.
	resp, body := postJSON(t, srv.URL+"/chat", `{"session_id":"s-1","customer_id":"c-1","message":"hi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "responded", body["status"])
}

func TestAbandonSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedDM{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/nope", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalog(t *testing.T) {
	srv, store := newTestServer(t, &scriptedDM{})
	require.NoError(t, store.Insert(context.Background(), product.Product{
		Name:     "durian",
		Category: "fruit",
		Price:    decimal.RequireFromString("12.00"),
		Quantity: 0,
	}))

	resp, err := http.Get(srv.URL + "/catalog")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body catalogResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Products, 1, "out-of-stock products stay hidden")
	assert.Equal(t, "banana", body.Products[0].Name)
	assert.Equal(t, 3.00, body.Products[0].Price)
	assert.Equal(t, 5, body.Products[0].Stock)
}
