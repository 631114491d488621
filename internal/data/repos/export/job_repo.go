package export

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/platform/apierr"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// ErrPreconditionFailed is returned when a write would violate one of the
// Export Job invariants (e.g. completing a job that isn't processing).
// Callers must treat this as a lost race and re-read state.
var ErrPreconditionFailed = errors.New("export job precondition failed")

type ListFilter struct {
	ProjectRef string
	Status     domain.Status
	Since      *time.Time
}

// JobRepo is the durable single source of truth for export job existence
// and state transitions (spec §4.1). All other components treat it as the
// arbiter; claim_next is the only linearizable compare-and-set primitive.
type JobRepo interface {
	Create(dbc dbctx.Context, job *domain.Job) (*domain.Job, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*domain.Job, error)
	List(dbc dbctx.Context, filter ListFilter) ([]*domain.Job, error)
	ListActiveForOwner(dbc dbctx.Context, owner string) ([]*domain.Job, error)
	ListOrphaned(dbc dbctx.Context) ([]*domain.Job, error)

	ClaimNext(dbc dbctx.Context, workerID string, kinds []domain.Kind) (*domain.Job, error)
	MarkComplete(dbc dbctx.Context, id uuid.UUID, outputRef, filename string) error
	MarkError(dbc dbctx.Context, id uuid.UUID, message string) error
	MarkCancelled(dbc dbctx.Context, id uuid.UUID) error
	MarkCancelledFromProcessing(dbc dbctx.Context, id uuid.UUID) error
	RequestCancel(dbc dbctx.Context, id uuid.UUID) (*domain.Job, error)

	UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, phase string) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "export.JobRepo")}
}

func (r *jobRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRepo) Create(dbc dbctx.Context, job *domain.Job) (*domain.Job, error) {
	job.Status = domain.StatusPending
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) Get(dbc dbctx.Context, id uuid.UUID) (*domain.Job, error) {
	var job domain.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) List(dbc dbctx.Context, filter ListFilter) ([]*domain.Job, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Job{})
	if filter.ProjectRef != "" {
		q = q.Where("project_ref = ?", filter.ProjectRef)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	var out []*domain.Job
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListActiveForOwner(dbc dbctx.Context, owner string) ([]*domain.Job, error) {
	var out []*domain.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("owner = ? AND status IN ?", owner, []domain.Status{domain.StatusPending, domain.StatusProcessing}).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListOrphaned(dbc dbctx.Context) ([]*domain.Job, error) {
	var out []*domain.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("status = ?", domain.StatusProcessing).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNext atomically selects one pending job (FIFO by created_at, ties
// broken by id) and transitions it to processing. It is the critical
// section of the whole orchestrator: SELECT ... FOR UPDATE SKIP LOCKED
// followed by a conditional UPDATE inside one transaction, so concurrent
// callers across processes never receive the same row.
func (r *jobRepo) ClaimNext(dbc dbctx.Context, workerID string, kinds []domain.Kind) (*domain.Job, error) {
	now := time.Now()
	var claimed *domain.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.Job
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domain.StatusPending)
		if len(kinds) > 0 {
			q = q.Where("kind IN ?", kinds)
		}
		err := q.Order("created_at ASC, id ASC").First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res := txx.Model(&domain.Job{}).
			Where("id = ? AND status = ?", job.ID, domain.StatusPending).
			Updates(map[string]interface{}{
				"status":     domain.StatusProcessing,
				"started_at": now,
				"worker_id":  workerID,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race to another claimer between the SELECT and the UPDATE
			return nil
		}
		job.Status = domain.StatusProcessing
		job.StartedAt = &now
		job.WorkerID = workerID
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepo) MarkComplete(dbc dbctx.Context, id uuid.UUID, outputRef, filename string) error {
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]interface{}{
			"status":          domain.StatusComplete,
			"output_ref":      outputRef,
			"output_filename": filename,
			"progress":        100,
			"completed_at":    now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func (r *jobRepo) MarkError(dbc dbctx.Context, id uuid.UUID, message string) error {
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.StatusError,
			"error":        message,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func (r *jobRepo) MarkCancelled(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":       domain.StatusCancelled,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// MarkCancelledFromProcessing transitions a processing job whose driver
// observed cancel_requested and unwound cleanly into the cancelled
// terminal state. Unlike MarkError, this does not record an error message
// — cancellation is a distinct outcome from failure (see the cancellation
// terminal-state decision recorded for this service).
func (r *jobRepo) MarkCancelledFromProcessing(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.StatusCancelled,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// RequestCancel implements the three-way branch from spec §4.1: pending
// jobs cancel immediately; processing jobs get a cooperative flag the
// driver polls; terminal jobs are a no-op. It returns the job's state
// after the request so the API can answer with a fresh snapshot.
func (r *jobRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (*domain.Job, error) {
	now := time.Now()
	var out *domain.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.Job
		if err := txx.Where("id = ?", id).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.New(http.StatusNotFound, "job_not_found", err)
			}
			return err
		}
		switch job.Status {
		case domain.StatusPending:
			if err := txx.Model(&domain.Job{}).Where("id = ? AND status = ?", id, domain.StatusPending).
				Updates(map[string]interface{}{
					"status":       domain.StatusCancelled,
					"completed_at": now,
					"updated_at":   now,
				}).Error; err != nil {
				return err
			}
			job.Status = domain.StatusCancelled
			job.CompletedAt = &now
		case domain.StatusProcessing:
			if err := txx.Model(&domain.Job{}).Where("id = ?", id).
				Updates(map[string]interface{}{
					"cancel_requested": true,
					"updated_at":       now,
				}).Error; err != nil {
				return err
			}
			job.CancelRequested = true
		}
		out = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, phase string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]interface{}{
			"progress":   progress,
			"phase":      phase,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}
