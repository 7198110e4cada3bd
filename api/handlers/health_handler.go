package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

// Version is reported by the health endpoint
var Version = "dev"

// RunStatus reports the state of the run manager
type RunStatus interface {
	IsRunning() bool
	Phase() domain.RunPhase
}

// HealthHandler handles health check requests
type HealthHandler struct {
	status RunStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(status RunStatus) *HealthHandler {
	return &HealthHandler{
		status: status,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Run     struct {
		Running bool            `json:"running"`
		Phase   domain.RunPhase `json:"phase"`
	} `json:"run"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Run.Running = h.status.IsRunning()
	response.Run.Phase = h.status.Phase()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.status.Phase() == domain.PhaseFailed {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "last run failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
