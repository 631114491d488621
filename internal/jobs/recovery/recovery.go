package recovery

import (
	"context"

	repo "github.com/clipforge/exportd/internal/data/repos/export"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// Run brings persistent state to a coherent condition before the
// Scheduler begins claiming (spec §4.5). It must complete before
// Scheduler.Start is called.
//
// Every job found in processing is reconciled to error with the restart
// message: resuming a partially produced encode without checkpoints
// risks a corrupt artifact, so this service always opts for safety over
// reuse rather than attempting to resume. Jobs that were pending with a
// cancel request recorded are promoted straight to cancelled, since their
// cancel intent predates the restart.
func Run(ctx context.Context, jobs repo.JobRepo, log *logger.Logger, orphanPolicy string) error {
	log = log.With("component", "recovery.Run")
	dbc := dbctx.Context{Ctx: ctx}

	if orphanPolicy == "resume" {
		log.Warn("startup_orphan_policy=resume requested, but checkpoint-based resume is not implemented; falling back to the restart-to-error rule")
	}

	orphaned, err := jobs.ListOrphaned(dbc)
	if err != nil {
		return err
	}
	for _, job := range orphaned {
		if err := jobs.MarkError(dbc, job.ID, export.MessageRestarted); err != nil {
			log.Warn("failed to reconcile orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		log.Info("reconciled orphaned processing job to error", "job_id", job.ID)
	}

	pending, err := jobs.List(dbc, repo.ListFilter{Status: export.StatusPending})
	if err != nil {
		return err
	}
	for _, job := range pending {
		if !job.CancelRequested {
			continue
		}
		if err := jobs.MarkCancelled(dbc, job.ID); err != nil {
			log.Warn("failed to promote cancel-requested pending job", "job_id", job.ID, "error", err)
			continue
		}
		log.Info("promoted cancel-requested pending job to cancelled", "job_id", job.ID)
	}

	return nil
}
