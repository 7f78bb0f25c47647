// Package decision provides the narrow client for the external reasoning
// service that proposes actions. Its internals (prompting, model choice,
// text generation) are opaque to this repository.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/agent"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

// Client implements agent.DecisionMaker over HTTP: the full session
// transcript is posted to the service, which replies with either a final
// response or a proposed action.
type Client struct {
	url  string
	http *http.Client
}

var _ agent.DecisionMaker = (*Client)(nil)

// NewClient creates a Client for the given endpoint. A zero timeout defaults
// to 30 seconds.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type decideRequest struct {
	SessionID  string            `json:"session_id"`
	CustomerID string            `json:"customer_id,omitempty"`
	Messages   []session.Message `json:"messages"`
}

type decideResponse struct {
	Content string      `json:"content"`
	Action  *wireAction `json:"action,omitempty"`
}

type wireAction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Decide posts the session to the reasoning service and returns its decision.
func (c *Client) Decide(ctx context.Context, s *session.Session) (*agent.Decision, error) {
	body, err := json.Marshal(decideRequest{
		SessionID:  s.ID,
		CustomerID: s.CustomerID,
		Messages:   s.Messages,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call decision service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, errors.Errorf("decision service returned %d: %s", resp.StatusCode, data)
	}

	var dr decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	d := &agent.Decision{Content: dr.Content}
	if dr.Action != nil {
		d.Action = &agent.ProposedAction{
			Name:      dr.Action.Name,
			Arguments: dr.Action.Arguments,
		}
	}
	return d, nil
}
