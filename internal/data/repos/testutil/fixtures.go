package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	domain "github.com/clipforge/exportd/internal/domain/export"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedExportJob(tb testing.TB, ctx context.Context, tx *gorm.DB, owner, projectRef string, kind domain.Kind, status domain.Status, createdAt time.Time) *domain.Job {
	tb.Helper()
	j := &domain.Job{
		ID:         uuid.New(),
		Owner:      owner,
		ProjectRef: projectRef,
		Kind:       kind,
		Status:     status,
		Params:     datatypes.JSON([]byte("{}")),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed export job: %v", err)
	}
	return j
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
