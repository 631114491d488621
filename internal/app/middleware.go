package app

import (
	"github.com/clipforge/exportd/internal/middleware"
	"github.com/clipforge/exportd/internal/platform/logger"
)

type Middleware struct {
	CallerIdentity *middleware.CallerIdentity
}

func wireMiddleware(log *logger.Logger) Middleware {
	log.Info("wiring middleware")
	return Middleware{
		CallerIdentity: middleware.NewCallerIdentity(log),
	}
}
