package db

import (
	"fmt"

	domain "github.com/clipforge/exportd/internal/domain/export"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Job{},
	)
}

// EnsureExportIndexes adds the indexes gorm's tag-based AutoMigrate can't
// express: partial indexes and a multi-column covering index for the
// scheduler's claim_next scan and the API's active-jobs listing.
func EnsureExportIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_export_job_status_created_at
		ON export_job (status, created_at)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_export_job_status_created_at: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_export_job_owner_status
		ON export_job (owner, status)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_export_job_owner_status: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_export_job_project_ref_created_at
		ON export_job (project_ref, created_at DESC)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_export_job_project_ref_created_at: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("auto migrating postgres tables")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("auto migration failed", "error", err)
		return err
	}
	if err := EnsureExportIndexes(s.db); err != nil {
		s.log.Error("export index migration failed", "error", err)
		return err
	}
	return nil
}
