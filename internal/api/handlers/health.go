package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// BackendProbe is what the health endpoints need from the tournament client
type BackendProbe interface {
	GetTeams(ctx context.Context) ([]string, error)
	BreakerStatus() map[string]interface{}
	BaseURL() string
}

// SessionCounter reports live view sessions
type SessionCounter interface {
	Count() int
}

type HealthHandler struct {
	backend  BackendProbe
	sessions SessionCounter
	started  time.Time
}

func NewHealthHandler(backend BackendProbe, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{backend: backend, sessions: sessions, started: time.Now()}
}

// GetHealth returns 200 whenever the server is running
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   "tourney-dashboard",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"sessions":  h.sessions.Count(),
	})
}

// GetReady returns 200 only when the tournament backend answers /teams
func (h *HealthHandler) GetReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.backend.GetTeams(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"backend": h.backend.BaseURL(),
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"backend": h.backend.BaseURL(),
	})
}

// GetCircuitBreakerStatus returns the backend client's breaker counters
func (h *HealthHandler) GetCircuitBreakerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.backend.BreakerStatus())
}
