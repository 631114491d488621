package drivers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clipforge/exportd/internal/blob"
	"github.com/clipforge/exportd/internal/platform/dbctx"
)

// Renderer is the opaque boundary every driver stops at: it takes one or
// more source blobs plus a render plan and produces one output blob. What
// happens inside (the actual video encoding, compositing, or concatenation)
// is explicitly out of scope for this service — only two implementations
// exist, a local passthrough used in backend_mode=local and a remote GPU
// client used in backend_mode=remote-gpu, and drivers never know which one
// they're talking to.
type Renderer interface {
	// Render reads every source in plan.Inputs from the Blob Store, performs
	// whatever transformation plan.Instructions describes, and writes the
	// result to plan.OutputCategory (CategoryOutput if unset) at
	// plan.OutputKey. progress is invoked with 0..1 fractional completion
	// of the render step itself.
	Render(ctx context.Context, plan RenderPlan, progress func(frac float64)) error
}

// RenderInput names one source blob a render plan draws from.
type RenderInput struct {
	Category blob.Category
	Key      string
}

// RenderPlan is the renderer-agnostic description of one unit of work: a
// driver builds this from decoded Params and hands it to whichever
// Renderer is wired in, never touching pixels itself.
type RenderPlan struct {
	JobID uuid.UUID
	Kind  string

	Inputs       []RenderInput
	Instructions map[string]any

	// OutputCategory is where the rendered result lands. A per-clip render
	// that feeds a later concatenation step writes to CategoryIntermediate;
	// a job's final render writes to CategoryOutput. Zero value means
	// CategoryOutput, so existing single-step drivers don't have to set it.
	OutputCategory blob.Category
	OutputKey      string
}

// outputCategoryOrDefault returns plan.OutputCategory, or CategoryOutput
// if the driver left it unset.
func outputCategoryOrDefault(plan RenderPlan) blob.Category {
	if plan.OutputCategory == "" {
		return blob.CategoryOutput
	}
	return plan.OutputCategory
}

// localRenderer is the backend_mode=local implementation: it has no real
// encoder, so it satisfies the Renderer contract by streaming the first
// input straight through to the output key. This keeps every driver fully
// exercised end to end (blob round trip, progress reporting, cancellation)
// without requiring an actual media toolchain in this service.
type localRenderer struct {
	store blob.Store
}

func NewLocalRenderer(store blob.Store) Renderer {
	return &localRenderer{store: store}
}

func (r *localRenderer) Render(ctx context.Context, plan RenderPlan, progress func(frac float64)) error {
	if len(plan.Inputs) == 0 {
		return fmt.Errorf("render plan %q has no inputs", plan.Kind)
	}
	primary := plan.Inputs[0]
	rc, err := r.store.DownloadFile(ctx, primary.Category, primary.Key)
	if err != nil {
		return fmt.Errorf("download %s/%s: %w", primary.Category, primary.Key, err)
	}
	defer rc.Close()

	if progress != nil {
		progress(0.5)
	}

	dbc := dbctx.Context{Ctx: ctx}
	if err := r.store.UploadFile(dbc, outputCategoryOrDefault(plan), plan.OutputKey, rc); err != nil {
		return fmt.Errorf("upload output %s: %w", plan.OutputKey, err)
	}
	if progress != nil {
		progress(1)
	}
	return nil
}
