package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"speaker-split/internal/api/v1/handlers"
	"speaker-split/internal/api/v1/services"
	"speaker-split/internal/app/credits"
	"speaker-split/internal/app/gate"
	"speaker-split/internal/app/jobs"
	"speaker-split/internal/config"
)

// ServiceContainer holds all collaborators needed by handlers
type ServiceContainer struct {
	Jobs    jobs.Store
	Credits *credits.Service
	Gate    *gate.Gate
	Plans   *config.Plans
	Storage services.StorageService
	Logger  *slog.Logger
}

// RegisterRoutes registers all v1 API routes
func RegisterRoutes(router *gin.RouterGroup, container *ServiceContainer) {
	processHandler := handlers.NewProcessHandler(container.Jobs, container.Gate, container.Logger)
	router.POST("/process/:capability", processHandler.Process)

	jobHandler := handlers.NewJobHandler(container.Jobs)
	router.GET("/jobs/:id", jobHandler.Get)

	creditsHandler := handlers.NewCreditsHandler(container.Credits, container.Plans)
	creditsGroup := router.Group("/credits")
	{
		creditsGroup.GET("", creditsHandler.Get)
		creditsGroup.POST("/deduct", creditsHandler.Deduct)
	}

	// Upload requires object storage; demo deployments run without it
	if container.Storage != nil {
		uploadHandler := handlers.NewUploadHandler(container.Storage, container.Logger)
		router.POST("/upload", uploadHandler.Upload)
	}
}
