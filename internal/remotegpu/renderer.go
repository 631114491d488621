package remotegpu

import (
	"context"
	"fmt"
	"time"

	"github.com/clipforge/exportd/internal/blob"
	"github.com/clipforge/exportd/internal/jobs/drivers"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// renderer is the backend_mode=remote-gpu implementation of
// drivers.Renderer: it hands the render plan to a remote compute service
// instead of doing any encoding locally.
type renderer struct {
	client *Client
	leases *LeaseStore
	log    *logger.Logger
}

func NewRenderer(client *Client, leases *LeaseStore, log *logger.Logger) drivers.Renderer {
	return &renderer{client: client, leases: leases, log: log.With("component", "remotegpu.Renderer")}
}

func (r *renderer) Render(ctx context.Context, plan drivers.RenderPlan, progress func(frac float64)) error {
	if len(plan.Inputs) == 0 {
		return fmt.Errorf("render plan %q has no inputs", plan.Kind)
	}

	inputURLs := make([]string, 0, len(plan.Inputs))
	for _, in := range plan.Inputs {
		url, err := r.client.store.GetPublicURL(ctx, in.Category, in.Key)
		if err != nil {
			return fmt.Errorf("resolve input url %s/%s: %w", in.Category, in.Key, err)
		}
		inputURLs = append(inputURLs, url)
	}

	remoteJobID, err := r.client.Submit(ctx, plan.Kind, inputURLs, plan.Instructions)
	if err != nil {
		return fmt.Errorf("submit remote gpu job: %w", err)
	}

	if err := r.leases.Set(ctx, plan.JobID, remoteJobID); err != nil {
		r.log.Warn("failed to record remote gpu lease", "job_id", plan.JobID, "remote_job_id", remoteJobID, "error", err)
	}
	defer func() {
		if err := r.leases.Delete(ctx, plan.JobID); err != nil {
			r.log.Warn("failed to clear remote gpu lease", "job_id", plan.JobID, "error", err)
		}
	}()

	st, err := r.pollUntilDone(ctx, remoteJobID, progress)
	if err != nil {
		r.bestEffortCancel(remoteJobID)
		return err
	}
	if st.ErrorMsg != "" {
		return fmt.Errorf("remote gpu job %s failed: %s", remoteJobID, st.ErrorMsg)
	}
	if len(st.Outputs) == 0 {
		return fmt.Errorf("remote gpu job %s completed with no outputs", remoteJobID)
	}

	destCategory := plan.OutputCategory
	if destCategory == "" {
		destCategory = blob.CategoryOutput
	}
	if err := r.client.Download(ctx, st.Outputs[0], destCategory, plan.OutputKey); err != nil {
		return fmt.Errorf("download remote gpu output: %w", err)
	}
	return nil
}

func (r *renderer) pollUntilDone(ctx context.Context, remoteJobID string, progress func(frac float64)) (RemoteStatus, error) {
	ticker := time.NewTicker(r.client.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return RemoteStatus{}, ctx.Err()
		case <-ticker.C:
			st, err := r.client.Poll(ctx, remoteJobID)
			if err != nil {
				return RemoteStatus{}, err
			}
			if progress != nil {
				progress(float64(st.Percent) / 100)
			}
			if st.Done {
				return st, nil
			}
		}
	}
}

func (r *renderer) bestEffortCancel(remoteJobID string) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Cancel(cancelCtx, remoteJobID); err != nil {
		r.log.Warn("best-effort remote gpu cancel failed", "remote_job_id", remoteJobID, "error", err)
	}
}
