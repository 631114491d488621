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
	phaseFramingPreparing  = Phase{Name: "preparing", StartPct: 0, EndPct: 5}
	phaseFramingProcessing = Phase{Name: "processing", StartPct: 5, EndPct: 90}
	phaseFramingEncoding   = Phase{Name: "encoding", StartPct: 90, EndPct: 98}
	phaseFramingFinalizing = Phase{Name: "finalizing", StartPct: 98, EndPct: 100}
)

// framingDriver reframes a source clip to a target aspect ratio and frame
// rate, deriving a per-frame crop rectangle from the submitted keyframe
// timeline. The actual pixel-level crop/scale/encode is delegated to the
// Renderer; this driver's job is the contract around it — validating the
// crop timeline, reporting phase progress, and observing cancellation.
type framingDriver struct {
	store    blob.Store
	renderer Renderer
}

func NewFramingDriver(store blob.Store, renderer Renderer) Driver {
	return &framingDriver{store: store, renderer: renderer}
}

func (d *framingDriver) Kind() export.Kind { return export.KindFraming }

func (d *framingDriver) Run(ctx context.Context, job *export.Job, progress ProgressFunc, cancelled CancelChecker) (string, string, error) {
	var params export.FramingParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return "", "", fmt.Errorf("decode framing params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return "", "", fmt.Errorf("invalid framing params: %w", err)
	}

	pr := NewPhaseRunner(progress, cancelled)

	pr.Enter(phaseFramingPreparing, "resolving source")
	if _, err := d.store.GetObjectAttrs(ctx, blob.CategorySource, params.SourceRef); err != nil {
		return "", "", fmt.Errorf("source %q not found: %w", params.SourceRef, err)
	}
	if err := pr.CheckCancelled(); err != nil {
		return "", "", err
	}
	pr.Done("source resolved")

	pr.Enter(phaseFramingProcessing, "computing crop timeline")
	// The crop rectangle at each sampled instant is only needed by the
	// renderer's instruction payload, not by this driver. The samples here
	// pace the phase's progress and cancellation checks; their results are
	// discarded, and nothing in this loop rejects a malformed timeline.
	sampleCount := 10
	for i := 0; i < sampleCount; i++ {
		if err := pr.CheckCancelled(); err != nil {
			return "", "", err
		}
		t := sampleTime(params.CropKeyframes, i, sampleCount)
		_ = export.InterpolateRect(params.CropKeyframes, t)
		pr.Step(float64(i+1)/float64(sampleCount), "")
	}
	pr.Done("crop timeline resolved")

	outputKey := fmt.Sprintf("framing/%s/%s.mp4", job.ProjectRef, uuid.New().String())
	plan := RenderPlan{
		JobID: job.ID,
		Kind:  string(export.KindFraming),
		Inputs: []RenderInput{
			{Category: blob.CategorySource, Key: params.SourceRef},
		},
		Instructions: map[string]any{
			"crop_keyframes":   params.CropKeyframes,
			"segments":         params.Segments,
			"target_aspect":    params.TargetAspect,
			"target_frame_rate": params.TargetFrameRate,
			"include_audio":    params.IncludeAudio,
		},
		OutputKey: outputKey,
	}

	pr.Enter(phaseFramingEncoding, "encoding")
	if err := d.renderer.Render(ctx, plan, func(frac float64) { pr.Step(frac, "") }); err != nil {
		return "", "", fmt.Errorf("render framing output: %w", err)
	}
	if err := pr.CheckCancelled(); err != nil {
		return "", "", err
	}
	pr.Done("encoded")

	pr.Enter(phaseFramingFinalizing, "finalizing")
	if _, err := d.store.GetObjectAttrs(ctx, blob.CategoryOutput, outputKey); err != nil {
		return "", "", fmt.Errorf("output %q missing after render: %w", outputKey, err)
	}
	pr.Done("complete")

	filename := fmt.Sprintf("%s-framing.mp4", job.ProjectRef)
	return outputKey, filename, nil
}

func sampleTime(keyframes []export.CropKeyframe, i, n int) float64 {
	if len(keyframes) == 0 {
		return 0
	}
	start := keyframes[0].SourceTimeSec
	end := keyframes[len(keyframes)-1].SourceTimeSec
	if n <= 1 || end <= start {
		return start
	}
	frac := float64(i) / float64(n-1)
	return start + (end-start)*frac
}
