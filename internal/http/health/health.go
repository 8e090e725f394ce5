package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Handler serves liveness and readiness probes.
type Handler struct {
	ready  atomic.Bool
	mu     sync.RWMutex
	checks map[string]Check
}

// New returns a health handler instance.
func New() *Handler {
	return &Handler{checks: map[string]Check{}}
}

// AddCheck registers a readiness check under name.
func (h *Handler) AddCheck(name string, check Check) {
	if check == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetReady marks the handler as ready.
func (h *Handler) SetReady() {
	h.ready.Store(true)
}

// SetNotReady marks the handler as not ready.
func (h *Handler) SetNotReady() {
	h.ready.Store(false)
}

// Healthz handles liveness probes.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Readyz handles readiness probes. It fails while the server is not started
// or any registered check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	body := readiness{Status: "ready"}
	code := http.StatusOK
	if !h.ready.Load() {
		body.Status = "not ready"
		code = http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		h.mu.RLock()
		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if body.Checks == nil {
				body.Checks = map[string]string{}
			}
			if err := h.checks[name](ctx); err != nil {
				body.Checks[name] = err.Error()
				body.Status = "not ready"
				code = http.StatusServiceUnavailable
				continue
			}
			body.Checks[name] = "ok"
		}
		h.mu.RUnlock()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
