package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	repo "github.com/clipforge/exportd/internal/data/repos/export"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/jobs/drivers"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/logger"
	"github.com/clipforge/exportd/internal/progress"
)

// Scheduler is the worker pool described in spec §4.2: N cooperative
// workers, each looping claim -> dispatch -> report, FIFO by created_at,
// bounded concurrency, no automatic retry on error.
type Scheduler struct {
	jobs     repo.JobRepo
	registry *drivers.Registry
	hub      *progress.Hub
	log      *logger.Logger
	cfg      Config
	workerID string

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(jobs repo.JobRepo, registry *drivers.Registry, hub *progress.Hub, log *logger.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		registry: registry,
		hub:      hub,
		log:      log.With("component", "scheduler.Scheduler"),
		cfg:      cfg,
		workerID: uuid.New().String(),
		stop:     make(chan struct{}),
	}
}

// Start launches cfg.WorkerConcurrency worker loops. It returns
// immediately; call Stop to request graceful shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.WorkerConcurrency; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx, i)
	}
}

// Stop signals every worker loop to stop claiming new jobs and blocks
// until in-flight drivers finish (or observe ctx cancellation themselves).
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) runWorker(ctx context.Context, idx int) {
	defer s.wg.Done()
	backoff := s.cfg.ClaimPollInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		job, err := s.jobs.ClaimNext(dbctx.Context{Ctx: ctx}, s.workerID, nil)
		if err != nil {
			s.log.Warn("claim_next failed", "worker", idx, "error", err)
			s.sleepBackoff(ctx, &backoff)
			continue
		}
		if job == nil {
			s.sleepBackoff(ctx, &backoff)
			continue
		}
		backoff = s.cfg.ClaimPollInterval

		s.runJob(ctx, job)
	}
}

func (s *Scheduler) sleepBackoff(ctx context.Context, backoff *time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-s.stop:
		return
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > s.cfg.ClaimPollMax {
		*backoff = s.cfg.ClaimPollMax
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *export.Job) {
	driver, ok := s.registry.Get(job.Kind)
	if !ok {
		s.log.Warn("no driver registered for kind, marking error", "job_id", job.ID, "kind", job.Kind)
		s.finishError(ctx, job.ID, "no driver registered for kind "+string(job.Kind))
		return
	}

	cancelled := s.cancelChecker(ctx, job.ID)
	progressFn := drivers.ProgressFunc(func(percent int, phase, message string) {
		s.reportProgress(ctx, job.ID, percent, phase, message)
	})

	outputRef, filename, err := s.invokeDriver(ctx, driver, job, progressFn, cancelled)
	switch {
	case err == nil:
		s.finishComplete(ctx, job.ID, outputRef, filename)
	case errors.Is(err, drivers.ErrCancelled):
		s.finishCancelled(ctx, job.ID)
	default:
		s.finishError(ctx, job.ID, sanitizeDriverError(err))
	}
}

// invokeDriver recovers a panicking driver into a plain error, mirroring
// the worker loop's job-handler panic guard: one bad driver invocation
// must not take down the whole scheduler.
func (s *Scheduler) invokeDriver(ctx context.Context, d drivers.Driver, job *export.Job, progressFn drivers.ProgressFunc, cancelled drivers.CancelChecker) (outputRef, filename string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("driver panic", "job_id", job.ID, "kind", job.Kind, "panic", r)
			err = errDriverPanicked
		}
	}()
	return d.Run(ctx, job, progressFn, cancelled)
}

var errDriverPanicked = errors.New("driver panicked during execution")

// cancelChecker throttles cancel_requested reads to at most once per
// CancelPollInterval, since drivers may poll it at every per-unit
// boundary and this is not meant to hammer the Job Store.
func (s *Scheduler) cancelChecker(ctx context.Context, jobID uuid.UUID) drivers.CancelChecker {
	var mu sync.Mutex
	lastChecked := time.Time{}
	cached := false
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(lastChecked) < s.cfg.CancelPollInterval {
			return cached
		}
		lastChecked = time.Now()
		job, err := s.jobs.Get(dbctx.Context{Ctx: ctx}, jobID)
		if err != nil || job == nil {
			return cached
		}
		cached = job.CancelRequested
		return cached
	}
}

func (s *Scheduler) reportProgress(ctx context.Context, jobID uuid.UUID, percent int, phase, message string) {
	if err := s.jobs.UpdateProgress(dbctx.Context{Ctx: ctx}, jobID, percent, phase); err != nil {
		s.log.Warn("update progress failed", "job_id", jobID, "error", err)
	}
	s.hub.Publish(jobID, progress.Event{Status: string(export.StatusProcessing), Progress: percent, Phase: phase, Message: message})
}

func (s *Scheduler) finishComplete(ctx context.Context, jobID uuid.UUID, outputRef, filename string) {
	if err := s.jobs.MarkComplete(dbctx.Context{Ctx: ctx}, jobID, outputRef, filename); err != nil {
		s.log.Warn("mark_complete failed", "job_id", jobID, "error", err)
		return
	}
	s.hub.Publish(jobID, progress.Event{Status: string(export.StatusComplete), Progress: 100, OutputRef: outputRef, OutputFilename: filename})
}

func (s *Scheduler) finishError(ctx context.Context, jobID uuid.UUID, message string) {
	if err := s.jobs.MarkError(dbctx.Context{Ctx: ctx}, jobID, message); err != nil {
		s.log.Warn("mark_error failed", "job_id", jobID, "error", err)
		return
	}
	s.hub.Publish(jobID, progress.Event{Status: string(export.StatusError), Error: message})
}

func (s *Scheduler) finishCancelled(ctx context.Context, jobID uuid.UUID) {
	if err := s.jobs.MarkCancelledFromProcessing(dbctx.Context{Ctx: ctx}, jobID); err != nil {
		s.log.Warn("mark_cancelled failed", "job_id", jobID, "error", err)
		return
	}
	s.hub.Publish(jobID, progress.Event{Status: string(export.StatusCancelled)})
}

// sanitizeDriverError turns a driver error into the message stored on the
// job: the error text truncated to its first 300 bytes. It does not remove
// paths, credentials or other detail from that text.
func sanitizeDriverError(err error) string {
	msg := err.Error()
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
