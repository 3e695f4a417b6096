package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker serves a JSON health summary of the trading controller.
type HealthChecker struct {
	mu            sync.RWMutex
	lastTrade     time.Time
	activeOrders  int
	agentActive   bool
	breakerActive bool
	errors        []string
}

type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastTrade     time.Time `json:"last_trade"`
	ActiveOrders  int       `json:"active_orders"`
	AgentActive   bool      `json:"agent_active"`
	BreakerActive bool      `json:"breaker_active"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{errors: make([]string, 0)}
}

func (h *HealthChecker) UpdateLastTrade(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTrade = t
}

func (h *HealthChecker) SetActiveOrders(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeOrders = n
}

func (h *HealthChecker) SetAgentActive(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agentActive = active
}

func (h *HealthChecker) SetBreakerActive(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakerActive = active
}

func (h *HealthChecker) AddError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 20 {
		h.errors = h.errors[1:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.agentActive || h.breakerActive {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastTrade:     h.lastTrade,
		ActiveOrders:  h.activeOrders,
		AgentActive:   h.agentActive,
		BreakerActive: h.breakerActive,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
