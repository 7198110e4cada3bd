package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileCatalog is the read side of the record store
type FileCatalog interface {
	GetStats(ctx context.Context) (*domain.FileStats, error)
	FindFile(ctx context.Context, id string) (*domain.FileRecord, error)
}

// FileHandler handles catalog queries
type FileHandler struct {
	catalog FileCatalog
	logger  *zap.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(catalog FileCatalog, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// GetStats handles GET /api/v1/files/stats
func (h *FileHandler) GetStats(c *gin.Context) {
	stats, err := h.catalog.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetFile handles GET /api/v1/files?id=Books/a.pdf
func (h *FileHandler) GetFile(c *gin.Context) {
	id := strings.Trim(c.Query("id"), "/")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file id required"})
		return
	}

	file, err := h.catalog.FindFile(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to find file", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, file)
}
