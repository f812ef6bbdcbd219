package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one dependency and returns an error when it is unhealthy
type CheckFunc func() error

// HealthChecker aggregates named dependency checks
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates an empty health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc)}
}

// Register adds a named dependency check
func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Handler serves the aggregated health status. Any failing check makes the
// overall status unhealthy with a 503.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		checks := make(map[string]CheckFunc, len(h.checks))
		for name, check := range h.checks {
			checks[name] = check
		}
		h.mu.RUnlock()

		resp := healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]string, len(checks)),
		}

		status := http.StatusOK
		for name, check := range checks {
			if err := check(); err != nil {
				resp.Status = "unhealthy"
				resp.Checks[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				resp.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	})
}
