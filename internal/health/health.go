// Package health serves the bridge daemon's /healthz and /readyz endpoints.
//
// /healthz is a pure liveness probe — a process that can answer HTTP is
// alive, independent of whether postgres or redis are reachable. /readyz
// runs the registered [Checker] list and is what a load balancer or
// orchestrator should gate traffic on: the bridge degrades gracefully
// without postgres (conversation state falls back to memory) or redis (the
// query/embedding caches go cold), so those checks are marked non-critical
// and only pull /readyz down to "degraded", not "fail". A critical check
// failing (none are registered by default) fails /readyz outright.
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded", or "fail") and a "checks" map containing the result of each
// named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds how long a single readiness probe may run before its
// context is cancelled, so one stuck dependency can't stall /readyz.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe evaluated on every /readyz request.
type Checker struct {
	// Name labels this check in the JSON response (e.g. "postgres", "redis").
	Name string

	// Critical marks whether a failure here should fail /readyz outright
	// (503) rather than report "degraded" (200) while letting traffic
	// through. Dependencies the bridge has a fallback path for — postgres,
	// redis — are non-critical.
	Critical bool

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers, in order, on
// each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK — a running process that can serve HTTP is
// considered alive regardless of dependency health.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz evaluates every registered [Checker] and reports "ok" if all pass,
// "degraded" (still 200) if only non-critical checks failed, or "fail" (503)
// if any critical check failed.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	degraded, failed := false, false

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		switch {
		case err == nil:
			checks[c.Name] = "ok"
		case c.Critical:
			checks[c.Name] = "fail: " + err.Error()
			failed = true
		default:
			checks[c.Name] = "degraded: " + err.Error()
			degraded = true
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	switch {
	case failed:
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	case degraded:
		res.Status = "degraded"
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
