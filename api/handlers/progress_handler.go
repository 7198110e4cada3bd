package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"github.com/ttscraper/ttscraper-go/internal/progress"
)

// SnapshotSource exposes the indicators of the running transfers
type SnapshotSource interface {
	Snapshot() progress.Snapshot
}

// RunSource exposes the summary of the active or last download run
type RunSource interface {
	Current() (*domain.RunSummary, bool)
}

// ProgressHandler serves the live progress of a run
type ProgressHandler struct {
	status    RunStatus
	runs      RunSource
	snapshots SnapshotSource
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(status RunStatus, runs RunSource, snapshots SnapshotSource) *ProgressHandler {
	return &ProgressHandler{
		status:    status,
		runs:      runs,
		snapshots: snapshots,
	}
}

// ProgressResponse represents the progress of a run
type ProgressResponse struct {
	Phase      domain.RunPhase    `json:"phase"`
	Running    bool               `json:"running"`
	Run        *domain.RunSummary `json:"run,omitempty"`
	Indicators progress.Snapshot  `json:"indicators"`
}

// GetProgress handles GET /api/v1/progress
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	response := ProgressResponse{
		Phase:      h.status.Phase(),
		Running:    h.status.IsRunning(),
		Indicators: h.snapshots.Snapshot(),
	}
	if summary, ok := h.runs.Current(); ok {
		response.Run = summary
	}

	c.JSON(http.StatusOK, response)
}
