// Package health serves Kubernetes-style liveness and readiness probes.
//
// Checks run periodically in the background. A probe only flips to unhealthy
// after failing several times in a row, so a single slow database ping does
// not take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// failuresBeforeUnhealthy is how many consecutive failures mark a probe
// unhealthy; one success restores it.
const failuresBeforeUnhealthy = 3

// CheckFunc probes one dependency. Nil means healthy.
type CheckFunc func(ctx context.Context) error

// probe is one registered check plus its current state. tick is only called
// from the probe's own goroutine; status is read concurrently by the HTTP
// endpoints under mu.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	mu       sync.Mutex
	healthy  bool
	lastErr  error
	failures int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	return &probe{
		name:    name,
		timeout: timeout,
		check:   check,
		healthy: true,
	}
}

func (p *probe) tick(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(checkCtx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.failures++
		if p.failures >= failuresBeforeUnhealthy {
			p.healthy = false
		}
		return
	}
	p.failures = 0
	p.healthy = true
}

// status returns the probe's health and the message to report when unhealthy.
func (p *probe) status() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.healthy {
		return true, ""
	}
	if p.lastErr != nil {
		return false, p.lastErr.Error()
	}
	return false, "check is unhealthy"
}

// Health aggregates liveness and readiness probes for one service.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health with no probes, in the not-ready state. Call SetReady
// once startup wiring finishes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a process-level check (goroutine leaks, event
// loop stalls). Register all checks before Start.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a dependency check (database, downstream
// service). Register all checks before Start.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one goroutine per probe, ticking at interval. Each probe
// runs once immediately.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.tick(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.tick(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness bit. Shutdown sets it to false first
// so load balancers stop routing before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service should receive traffic: marked ready
// and every readiness probe passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(&h.readiness) {
		if ok, _ := p.status(); !ok {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(probes *[]*probe) []*probe {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*probe, len(*probes))
	copy(out, *probes)
	return out
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while liveness probes pass, 503 with the
// failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, failing(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves /readyz: 200 only when the service is marked ready
// and every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := failing(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeProbe(w, failures)
}

func failing(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if ok, msg := p.status(); !ok {
			failures[p.name] = msg
		}
	}
	return failures
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := probeResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
