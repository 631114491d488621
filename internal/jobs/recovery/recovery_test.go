package recovery

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repo "github.com/clipforge/exportd/internal/data/repos/export"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/logger"
)

type fakeJobRepo struct {
	jobs map[uuid.UUID]*export.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*export.Job)}
}

func (f *fakeJobRepo) seed(job *export.Job) { f.jobs[job.ID] = job }

func (f *fakeJobRepo) Create(dbc dbctx.Context, job *export.Job) (*export.Job, error) {
	f.seed(job)
	return job, nil
}
func (f *fakeJobRepo) Get(dbc dbctx.Context, id uuid.UUID) (*export.Job, error) { return f.jobs[id], nil }
func (f *fakeJobRepo) List(dbc dbctx.Context, filter repo.ListFilter) ([]*export.Job, error) {
	var out []*export.Job
	for _, j := range f.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}
func (f *fakeJobRepo) ListActiveForOwner(dbc dbctx.Context, owner string) ([]*export.Job, error) {
	return nil, nil
}
func (f *fakeJobRepo) ListOrphaned(dbc dbctx.Context) ([]*export.Job, error) {
	var out []*export.Job
	for _, j := range f.jobs {
		if j.Status == export.StatusProcessing {
			out = append(out, j)
		}
	}
	return out, nil
}
func (f *fakeJobRepo) ClaimNext(dbc dbctx.Context, workerID string, kinds []export.Kind) (*export.Job, error) {
	return nil, nil
}
func (f *fakeJobRepo) MarkComplete(dbc dbctx.Context, id uuid.UUID, outputRef, filename string) error {
	return nil
}
func (f *fakeJobRepo) MarkError(dbc dbctx.Context, id uuid.UUID, message string) error {
	f.jobs[id].Status = export.StatusError
	f.jobs[id].Error = message
	return nil
}
func (f *fakeJobRepo) MarkCancelled(dbc dbctx.Context, id uuid.UUID) error {
	f.jobs[id].Status = export.StatusCancelled
	return nil
}
func (f *fakeJobRepo) MarkCancelledFromProcessing(dbc dbctx.Context, id uuid.UUID) error {
	f.jobs[id].Status = export.StatusCancelled
	return nil
}
func (f *fakeJobRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (*export.Job, error) {
	return f.jobs[id], nil
}
func (f *fakeJobRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, phase string) error {
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestRunReconcilesOrphanedProcessingJobsToError(t *testing.T) {
	repoFake := newFakeJobRepo()
	orphan := &export.Job{ID: uuid.New(), Status: export.StatusProcessing, Params: datatypes.JSON([]byte(`{}`))}
	repoFake.seed(orphan)

	if err := Run(context.Background(), repoFake, testLogger(t), "fail"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := repoFake.jobs[orphan.ID]
	if got.Status != export.StatusError || got.Error != export.MessageRestarted {
		t.Fatalf("expected orphaned job reconciled to error with restart message, got %+v", got)
	}
}

func TestRunPromotesCancelRequestedPendingJobsToCancelled(t *testing.T) {
	repoFake := newFakeJobRepo()
	pending := &export.Job{ID: uuid.New(), Status: export.StatusPending, CancelRequested: true, Params: datatypes.JSON([]byte(`{}`))}
	repoFake.seed(pending)

	if err := Run(context.Background(), repoFake, testLogger(t), "fail"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := repoFake.jobs[pending.ID]
	if got.Status != export.StatusCancelled {
		t.Fatalf("expected cancel-requested pending job promoted to cancelled, got %+v", got)
	}
}

func TestRunLeavesOrdinaryPendingJobsAlone(t *testing.T) {
	repoFake := newFakeJobRepo()
	pending := &export.Job{ID: uuid.New(), Status: export.StatusPending, Params: datatypes.JSON([]byte(`{}`))}
	repoFake.seed(pending)

	if err := Run(context.Background(), repoFake, testLogger(t), "resume"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := repoFake.jobs[pending.ID]
	if got.Status != export.StatusPending {
		t.Fatalf("expected ordinary pending job untouched, got %+v", got)
	}
}
