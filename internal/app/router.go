package app

import (
	"github.com/gin-gonic/gin"

	"github.com/clipforge/exportd/internal/server"
)

func wireRouter(handlers Handlers, middleware Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ExportsHandler: handlers.Exports,
		CallerIdentity: middleware.CallerIdentity,
	})
}
