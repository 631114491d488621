package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/clipforge/exportd/internal/handlers"
	"github.com/clipforge/exportd/internal/middleware"
)

type RouterConfig struct {
	ExportsHandler *handlers.ExportsHandler
	CallerIdentity *middleware.CallerIdentity
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("exportd"))
	router.Use(middleware.TraceContext())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:80", "http://localhost:3000", "http://localhost:5174"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"X-Owner-ID", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	protected := router.Group("/")
	protected.Use(cfg.CallerIdentity.RequireOwner())

	protected.POST("/exports", cfg.ExportsHandler.Submit)
	protected.GET("/exports/active", cfg.ExportsHandler.ListActive)
	protected.GET("/exports/:id", cfg.ExportsHandler.Get)
	protected.DELETE("/exports/:id", cfg.ExportsHandler.Cancel)
	protected.GET("/exports/:id/download", cfg.ExportsHandler.Download)
	protected.GET("/projects/:project_ref/exports", cfg.ExportsHandler.ListForProject)
	protected.GET("/ws/exports/:id", cfg.ExportsHandler.Subscribe)

	return router
}
