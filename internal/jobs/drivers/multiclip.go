package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/exportd/internal/blob"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/platform/dbctx"
)

var (
	phaseMultiClipPreparing     = Phase{Name: "preparing", StartPct: 0, EndPct: 5}
	phaseMultiClipConcatenating = Phase{Name: "concatenating", StartPct: 80, EndPct: 95}
	phaseMultiClipFinalizing    = Phase{Name: "finalizing", StartPct: 95, EndPct: 100}
)

const multiClipMaxConcurrentClips = 3

// multiClipDriver stitches several source clips, each carrying its own crop
// timeline, into one output joined by a transition. Per-clip reframing
// invokes the same renderer contract the framing driver uses; clips render
// concurrently (bounded) since they're independent until the concatenation
// step, which is why this is the one driver pulling in errgroup.
type multiClipDriver struct {
	store    blob.Store
	renderer Renderer
}

func NewMultiClipDriver(store blob.Store, renderer Renderer) Driver {
	return &multiClipDriver{store: store, renderer: renderer}
}

func (d *multiClipDriver) Kind() export.Kind { return export.KindMultiClip }

func (d *multiClipDriver) Run(ctx context.Context, job *export.Job, progress ProgressFunc, cancelled CancelChecker) (string, string, error) {
	var params export.MultiClipParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return "", "", fmt.Errorf("decode multi_clip params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return "", "", fmt.Errorf("invalid multi_clip params: %w", err)
	}

	pr := NewPhaseRunner(progress, cancelled)
	n := len(params.Clips)

	pr.Enter(phaseMultiClipPreparing, fmt.Sprintf("resolving %d clips", n))
	for _, c := range params.Clips {
		if _, err := d.store.GetObjectAttrs(ctx, blob.CategorySource, c.SourceRef); err != nil {
			return "", "", fmt.Errorf("source %q not found: %w", c.SourceRef, err)
		}
	}
	if err := pr.CheckCancelled(); err != nil {
		return "", "", err
	}
	pr.Done("clips resolved")

	// Per-clip processing is distributed across the fixed [5,80] range,
	// each clip getting an equal share; completions report the whole-job
	// percent directly since the phase name changes per clip and
	// PhaseRunner assumes one fixed name per Enter call.
	const rangeStart, rangeEnd = 5, 80
	span := rangeEnd - rangeStart
	var completed int64

	clipKeys := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(multiClipMaxConcurrentClips)
	for i, clip := range params.Clips {
		i, clip := i, clip
		g.Go(func() error {
			if cancelled != nil && cancelled() {
				return ErrCancelled
			}
			outputKey := fmt.Sprintf("multi_clip/%s/%s-clip-%d.mp4", job.ProjectRef, uuid.New().String(), i)
			plan := RenderPlan{
				JobID: job.ID,
				Kind:  "multi_clip_segment",
				Inputs: []RenderInput{
					{Category: blob.CategorySource, Key: clip.SourceRef},
				},
				Instructions: map[string]any{
					"crop_keyframes": clip.CropKeyframes,
					"segments":       clip.Segments,
					"target_aspect":  params.TargetAspect,
				},
				OutputCategory: blob.CategoryIntermediate,
				OutputKey:      outputKey,
			}
			if err := d.renderer.Render(gctx, plan, nil); err != nil {
				return fmt.Errorf("render clip %d: %w", i, err)
			}
			clipKeys[i] = outputKey

			done := atomic.AddInt64(&completed, 1)
			pct := rangeStart + int(float64(span)*float64(done)/float64(n))
			if progress != nil {
				progress(pct, fmt.Sprintf("processing-clip-%d/%d", done, n), "")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if err == ErrCancelled {
			d.cleanupClips(ctx, clipKeys)
		}
		return "", "", err
	}
	if err := pr.CheckCancelled(); err != nil {
		d.cleanupClips(ctx, clipKeys)
		return "", "", err
	}

	outputKey := fmt.Sprintf("multi_clip/%s/%s.mp4", job.ProjectRef, uuid.New().String())
	concatPlan := RenderPlan{
		JobID: job.ID,
		Kind:  string(export.KindMultiClip),
		Inputs: func() []RenderInput {
			inputs := make([]RenderInput, len(clipKeys))
			for i, k := range clipKeys {
				inputs[i] = RenderInput{Category: blob.CategoryIntermediate, Key: k}
			}
			return inputs
		}(),
		Instructions: map[string]any{
			"transition": params.Transition,
		},
		OutputKey: outputKey,
	}

	pr.Enter(phaseMultiClipConcatenating, "concatenating")
	if err := d.renderer.Render(ctx, concatPlan, func(frac float64) { pr.Step(frac, "") }); err != nil {
		return "", "", fmt.Errorf("concatenate clips: %w", err)
	}
	pr.Done("concatenated")
	d.cleanupClips(ctx, clipKeys)

	pr.Enter(phaseMultiClipFinalizing, "finalizing")
	if _, err := d.store.GetObjectAttrs(ctx, blob.CategoryOutput, outputKey); err != nil {
		return "", "", fmt.Errorf("output %q missing after render: %w", outputKey, err)
	}
	pr.Done("complete")

	filename := fmt.Sprintf("%s-multi-clip.mp4", job.ProjectRef)
	return outputKey, filename, nil
}

// cleanupClips removes per-clip intermediate artifacts once they're no
// longer needed, and on the cancellation path, so a cancelled multi-clip
// job doesn't leave partial clip-1 output sitting in the blob store.
func (d *multiClipDriver) cleanupClips(ctx context.Context, keys []string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		_ = d.store.DeleteFile(dbctx.Context{Ctx: ctx}, blob.CategoryIntermediate, k)
	}
}
