package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ttscraper/ttscraper-go/api/handlers"
	"github.com/ttscraper/ttscraper-go/api/middleware"
	"github.com/ttscraper/ttscraper-go/pkg/logger"
	"go.uber.org/zap"
)

// Dependencies are the sources the status API reads from
type Dependencies struct {
	Status      handlers.RunStatus
	Runs        handlers.RunSource
	Snapshots   handlers.SnapshotSource
	Catalog     handlers.FileCatalog
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
}

// SetupRouter sets up the read-only status API
func SetupRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger, deps.MultiLogger))
	router.Use(middleware.Recovery(deps.Logger))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Status)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		progressHandler := handlers.NewProgressHandler(deps.Status, deps.Runs, deps.Snapshots)
		v1.GET("/progress", progressHandler.GetProgress)

		fileHandler := handlers.NewFileHandler(deps.Catalog, deps.Logger)
		files := v1.Group("/files")
		{
			files.GET("", fileHandler.GetFile)
			files.GET("/stats", fileHandler.GetStats)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, "/api/v1/progress")
	})

	return router
}
