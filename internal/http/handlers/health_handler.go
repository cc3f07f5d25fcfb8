package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// readyTimeout bounds the dependency probes of one readiness check.
const readyTimeout = 3 * time.Second

// Pinger checks the session store connection. Implemented by store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CRMHealth checks the external booking system. Implemented by crm.Adapter.
type CRMHealth interface {
	HealthCheck(ctx context.Context) error
}

// Health serves the liveness and readiness probes.
type Health struct {
	store Pinger
	crm   CRMHealth
}

// NewHealth wires the probe handler.
func NewHealth(store Pinger, crm CRMHealth) *Health {
	return &Health{store: store, crm: crm}
}

// Live is GET /healthz: process is up.
func (h *Health) Live(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready is GET /readyz. Redis down means no sessions, no budget, no locks:
// the service cannot take traffic and answers 503. The CRM being down is
// survivable (reads fall back to cache, writes to the fallback queue), so it
// only degrades the status.
func (h *Health) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	out := gin.H{"status": "ready", "redis": "ok", "crm": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		out["redis"] = "unavailable"
		out["status"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := h.crm.HealthCheck(ctx); err != nil {
		out["crm"] = "unavailable"
		if status == http.StatusOK {
			out["status"] = "degraded"
		}
	}

	ok(c, status, out)
}
