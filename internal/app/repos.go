package app

import (
	"gorm.io/gorm"

	repoexport "github.com/clipforge/exportd/internal/data/repos/export"
	"github.com/clipforge/exportd/internal/platform/logger"
)

type Repos struct {
	Jobs repoexport.JobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("wiring repos")
	return Repos{Jobs: repoexport.NewJobRepo(db, log)}
}
