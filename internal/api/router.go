package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/api/handler"
	"github.com/timmy/leadimport/internal/api/middleware"
	"github.com/timmy/leadimport/internal/config"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/service"
	"gorm.io/gorm"
)

// Services groups the services the HTTP layer exposes.
type Services struct {
	DB      *gorm.DB
	Files   *service.FileService
	Leads   *service.LeadService
	Imports *service.ImportService
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, serverCfg *config.ServerConfig, maxUploadBytes int64, log *logger.Logger) *gin.Engine {
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  serverCfg.CORS.AllowedOrigins,
		AllowAllOrigins: serverCfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(svc.DB)
	fileHandler := handler.NewFileHandler(svc.Files, maxUploadBytes)
	importHandler := handler.NewImportHandler(svc.Imports)
	batchHandler := handler.NewBatchHandler(svc.Leads)
	leadHandler := handler.NewLeadHandler(svc.Leads)
	statsHandler := handler.NewStatsHandler(svc.Leads, svc.Imports)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Files
		v1.POST("/files", fileHandler.Upload)
		v1.GET("/files", fileHandler.List)
		v1.GET("/files/:id", fileHandler.Get)
		v1.DELETE("/files/:id", fileHandler.Delete)

		// Imports
		v1.POST("/imports", importHandler.Start)
		v1.GET("/imports", importHandler.List)
		v1.GET("/imports/:id", importHandler.Get)

		// Batches
		v1.GET("/batches", batchHandler.List)
		v1.GET("/batches/:id", batchHandler.Get)
		v1.GET("/batches/:id/leads", batchHandler.Leads)
		v1.DELETE("/batches/:id", batchHandler.Delete)

		// Leads
		v1.GET("/leads", leadHandler.Search)
		v1.GET("/leads/:id", leadHandler.Get)
		v1.PATCH("/leads/:id/status", leadHandler.UpdateStatus)

		// Stats
		v1.GET("/stats", statsHandler.Get)
	}

	return r
}
