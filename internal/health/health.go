// Package health serves the ops endpoints that report whether hotmic can take
// dictation:
//
//   - /healthz: liveness, always 200 while the process serves HTTP.
//   - /readyz: 200 only when every registered [Checker] passes.
//   - /status: the coordinator's current state and status line.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name keys the check in the JSON response ("provider", "history").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Status is the body of /status.
type Status struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithStatus makes /status report fn's snapshot. Without it /status returns
// 404.
func WithStatus(fn func() Status) Option {
	return func(h *Handler) { h.status = fn }
}

// Handler serves the ops endpoints. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	status   func() Status
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: append([]Checker(nil), checkers...)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under [checkTimeout], and
// returns 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !allOK {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Statusz reports the coordinator snapshot configured with [WithStatus].
func (h *Handler) Statusz(w http.ResponseWriter, _ *http.Request) {
	if h.status == nil {
		http.NotFound(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /status", h.Statusz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
