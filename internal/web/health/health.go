// Package health serves the liveness, readiness and metrics endpoints.
package health

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a dependency is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checks answers orchestrator health checks.
type Checks struct {
	db           Pinger
	shuttingDown atomic.Bool
}

// New creates Checks that report ready while db answers pings.
func New(db Pinger) *Checks {
	return &Checks{db: db}
}

// StartShutdown makes /ready fail so traffic drains before the server stops.
func (h *Checks) StartShutdown() {
	h.shuttingDown.Store(true)
}

// RegisterRoutes registers /health, /ready and /metrics.
func (h *Checks) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Health reports that the process is serving.
func (h *Checks) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready returns 503 once shutdown has started or while the database is unreachable.
func (h *Checks) Ready(c *gin.Context) {
	if h.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
