package drivers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/clipforge/exportd/internal/blob"
	export "github.com/clipforge/exportd/internal/domain/export"
)

var (
	phaseOverlayPreparing   = Phase{Name: "preparing", StartPct: 0, EndPct: 5}
	phaseOverlayCompositing = Phase{Name: "compositing", StartPct: 5, EndPct: 95}
	phaseOverlayFinalizing  = Phase{Name: "finalizing", StartPct: 95, EndPct: 100}
)

// overlayDriver composites a stack of annotation layers (highlight ellipses,
// text, tracked markers) onto an already-framed working video. The driver
// drops hidden layers and hands the visible ones to the Renderer in
// submitted order with their keyframes as given; it does not evaluate
// keyframes or sort layers by z-order itself.
type overlayDriver struct {
	store    blob.Store
	renderer Renderer
}

func NewOverlayDriver(store blob.Store, renderer Renderer) Driver {
	return &overlayDriver{store: store, renderer: renderer}
}

func (d *overlayDriver) Kind() export.Kind { return export.KindOverlay }

func (d *overlayDriver) Run(ctx context.Context, job *export.Job, progress ProgressFunc, cancelled CancelChecker) (string, string, error) {
	var params export.OverlayParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return "", "", fmt.Errorf("decode overlay params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return "", "", fmt.Errorf("invalid overlay params: %w", err)
	}

	pr := NewPhaseRunner(progress, cancelled)

	pr.Enter(phaseOverlayPreparing, "resolving working video")
	if _, err := d.store.GetObjectAttrs(ctx, blob.CategoryIntermediate, params.WorkingVideoRef); err != nil {
		return "", "", fmt.Errorf("working video %q not found: %w", params.WorkingVideoRef, err)
	}
	if err := pr.CheckCancelled(); err != nil {
		return "", "", err
	}
	activeLayers := make([]export.OverlayLayer, 0, len(params.Layers))
	for _, l := range params.Layers {
		if l.Visible {
			activeLayers = append(activeLayers, l)
		}
	}
	pr.Done(fmt.Sprintf("%d of %d layers active", len(activeLayers), len(params.Layers)))

	outputKey := fmt.Sprintf("overlay/%s/%s.mp4", job.ProjectRef, uuid.New().String())
	plan := RenderPlan{
		JobID: job.ID,
		Kind:  string(export.KindOverlay),
		Inputs: []RenderInput{
			{Category: blob.CategoryIntermediate, Key: params.WorkingVideoRef},
		},
		Instructions: map[string]any{
			"layers": activeLayers,
		},
		OutputKey: outputKey,
	}

	pr.Enter(phaseOverlayCompositing, "compositing")
	if err := d.renderer.Render(ctx, plan, func(frac float64) { pr.Step(frac, "") }); err != nil {
		return "", "", fmt.Errorf("render overlay output: %w", err)
	}
	if err := pr.CheckCancelled(); err != nil {
		return "", "", err
	}
	pr.Done("composited")

	pr.Enter(phaseOverlayFinalizing, "finalizing")
	if _, err := d.store.GetObjectAttrs(ctx, blob.CategoryOutput, outputKey); err != nil {
		return "", "", fmt.Errorf("output %q missing after render: %w", outputKey, err)
	}
	pr.Done("complete")

	filename := fmt.Sprintf("%s-overlay.mp4", job.ProjectRef)
	return outputKey, filename, nil
}
