package app

import (
	repoexport "github.com/clipforge/exportd/internal/data/repos/export"
	"github.com/clipforge/exportd/internal/handlers"
	"github.com/clipforge/exportd/internal/platform/logger"
)

type Handlers struct {
	Exports *handlers.ExportsHandler
}

func wireHandlers(log *logger.Logger, services Services, jobs repoexport.JobRepo) Handlers {
	log.Info("wiring handlers")
	return Handlers{
		Exports: handlers.NewExportsHandler(jobs, services.Store, services.Hub, log),
	}
}
