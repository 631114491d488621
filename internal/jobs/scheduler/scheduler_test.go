package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repoexport "github.com/clipforge/exportd/internal/data/repos/export"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/jobs/drivers"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/logger"
	"github.com/clipforge/exportd/internal/progress"
)

type fakeJobRepo struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*export.Job
	order    []uuid.UUID
	claimErr error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*export.Job)}
}

func (f *fakeJobRepo) seed(job *export.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
}

func (f *fakeJobRepo) Create(dbc dbctx.Context, job *export.Job) (*export.Job, error) {
	f.seed(job)
	return job, nil
}

func (f *fakeJobRepo) Get(dbc dbctx.Context, id uuid.UUID) (*export.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobRepo) List(dbc dbctx.Context, filter repoexport.ListFilter) ([]*export.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListActiveForOwner(dbc dbctx.Context, owner string) ([]*export.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListOrphaned(dbc dbctx.Context) ([]*export.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ClaimNext(dbc dbctx.Context, workerID string, kinds []export.Kind) (*export.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	for _, id := range f.order {
		j := f.jobs[id]
		if j.Status == export.StatusPending {
			j.Status = export.StatusProcessing
			j.WorkerID = workerID
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeJobRepo) MarkComplete(dbc dbctx.Context, id uuid.UUID, outputRef, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Status = export.StatusComplete
	j.OutputRef = outputRef
	j.OutputFilename = filename
	j.Progress = 100
	return nil
}

func (f *fakeJobRepo) MarkError(dbc dbctx.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Status = export.StatusError
	j.Error = message
	return nil
}

func (f *fakeJobRepo) MarkCancelled(dbc dbctx.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Status = export.StatusCancelled
	return nil
}

func (f *fakeJobRepo) MarkCancelledFromProcessing(dbc dbctx.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Status = export.StatusCancelled
	return nil
}

func (f *fakeJobRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (*export.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.CancelRequested = true
	return j, nil
}

func (f *fakeJobRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, progressPct int, phase string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Progress = progressPct
	j.Phase = phase
	return nil
}

func (f *fakeJobRepo) status(id uuid.UUID) export.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id].Status
}

type fakeDriver struct {
	kind    export.Kind
	runFunc func(ctx context.Context, job *export.Job, progress drivers.ProgressFunc, cancelled drivers.CancelChecker) (string, string, error)
}

func (d *fakeDriver) Kind() export.Kind { return d.kind }

func (d *fakeDriver) Run(ctx context.Context, job *export.Job, progressFn drivers.ProgressFunc, cancelled drivers.CancelChecker) (string, string, error) {
	return d.runFunc(ctx, job, progressFn, cancelled)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newJob(kind export.Kind) *export.Job {
	return &export.Job{ID: uuid.New(), Owner: "o", ProjectRef: "p", Kind: kind, Status: export.StatusPending, Params: datatypes.JSON([]byte(`{}`))}
}

func TestSchedulerDrivesJobToComplete(t *testing.T) {
	repo := newFakeJobRepo()
	job := newJob(export.KindFraming)
	repo.seed(job)

	reg := drivers.NewRegistry()
	if err := reg.Register(&fakeDriver{kind: export.KindFraming, runFunc: func(ctx context.Context, j *export.Job, progressFn drivers.ProgressFunc, cancelled drivers.CancelChecker) (string, string, error) {
		progressFn(50, "processing", "")
		return "blob://out", "out.mp4", nil
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	hub := progress.NewHub(testLogger(t))
	sched := New(repo, reg, hub, testLogger(t), Config{WorkerConcurrency: 1, ClaimPollInterval: 5 * time.Millisecond, ClaimPollMax: 20 * time.Millisecond, CancelPollInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for repo.status(job.ID) != export.StatusComplete {
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status=%v", repo.status(job.ID))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	sched.Stop()

	got, _ := repo.Get(dbctx.Context{Ctx: context.Background()}, job.ID)
	if got.OutputRef != "blob://out" || got.OutputFilename != "out.mp4" {
		t.Fatalf("expected output fields set, got %+v", got)
	}
}

func TestSchedulerMarksErrorOnDriverFailure(t *testing.T) {
	repo := newFakeJobRepo()
	job := newJob(export.KindOverlay)
	repo.seed(job)

	reg := drivers.NewRegistry()
	if err := reg.Register(&fakeDriver{kind: export.KindOverlay, runFunc: func(ctx context.Context, j *export.Job, progressFn drivers.ProgressFunc, cancelled drivers.CancelChecker) (string, string, error) {
		return "", "", errBoom
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	hub := progress.NewHub(testLogger(t))
	sched := New(repo, reg, hub, testLogger(t), Config{WorkerConcurrency: 1, ClaimPollInterval: 5 * time.Millisecond, ClaimPollMax: 20 * time.Millisecond, CancelPollInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for repo.status(job.ID) != export.StatusError {
		if time.Now().After(deadline) {
			t.Fatalf("job never errored, status=%v", repo.status(job.ID))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	sched.Stop()
}

func TestSchedulerMarksCancelledOnErrCancelled(t *testing.T) {
	repo := newFakeJobRepo()
	job := newJob(export.KindMultiClip)
	repo.seed(job)

	reg := drivers.NewRegistry()
	if err := reg.Register(&fakeDriver{kind: export.KindMultiClip, runFunc: func(ctx context.Context, j *export.Job, progressFn drivers.ProgressFunc, cancelled drivers.CancelChecker) (string, string, error) {
		return "", "", drivers.ErrCancelled
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	hub := progress.NewHub(testLogger(t))
	sched := New(repo, reg, hub, testLogger(t), Config{WorkerConcurrency: 1, ClaimPollInterval: 5 * time.Millisecond, ClaimPollMax: 20 * time.Millisecond, CancelPollInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for repo.status(job.ID) != export.StatusCancelled {
		if time.Now().After(deadline) {
			t.Fatalf("job never cancelled, status=%v", repo.status(job.ID))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	sched.Stop()
}

func TestSchedulerNoDriverRegisteredMarksError(t *testing.T) {
	repo := newFakeJobRepo()
	job := newJob(export.KindAnnotateExtract)
	repo.seed(job)

	reg := drivers.NewRegistry()
	hub := progress.NewHub(testLogger(t))
	sched := New(repo, reg, hub, testLogger(t), Config{WorkerConcurrency: 1, ClaimPollInterval: 5 * time.Millisecond, ClaimPollMax: 20 * time.Millisecond, CancelPollInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for repo.status(job.ID) != export.StatusError {
		if time.Now().After(deadline) {
			t.Fatalf("job never errored, status=%v", repo.status(job.ID))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	sched.Stop()
}

var errBoom = errDriverErrorForTest{}

type errDriverErrorForTest struct{}

func (errDriverErrorForTest) Error() string { return "boom" }
