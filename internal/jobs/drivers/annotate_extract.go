package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/clipforge/exportd/internal/blob"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/platform/dbctx"
)

var phaseAnnotateFinalizing = Phase{Name: "finalizing", StartPct: 95, EndPct: 100}

// annotateExtractDriver cuts a set of independently-timed regions out of one
// source game video. Unlike multi-clip, each region stands alone — there is
// no concatenation step, so regions extract sequentially and each produces
// its own output blob rather than feeding a final render.
type annotateExtractDriver struct {
	store    blob.Store
	renderer Renderer
}

func NewAnnotateExtractDriver(store blob.Store, renderer Renderer) Driver {
	return &annotateExtractDriver{store: store, renderer: renderer}
}

func (d *annotateExtractDriver) Kind() export.Kind { return export.KindAnnotateExtract }

func (d *annotateExtractDriver) Run(ctx context.Context, job *export.Job, progress ProgressFunc, cancelled CancelChecker) (string, string, error) {
	var params export.AnnotateExtractParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return "", "", fmt.Errorf("decode annotate_extract params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return "", "", fmt.Errorf("invalid annotate_extract params: %w", err)
	}

	if _, err := d.store.GetObjectAttrs(ctx, blob.CategorySource, params.GameVideoRef); err != nil {
		return "", "", fmt.Errorf("source %q not found: %w", params.GameVideoRef, err)
	}

	n := len(params.Regions)
	const rangeStart, rangeEnd = 0, 95
	span := rangeEnd - rangeStart

	manifestKey := fmt.Sprintf("annotate_extract/%s/%s-manifest.json", job.ProjectRef, uuid.New().String())
	regionKeys := make([]string, n)

	for i, region := range params.Regions {
		if cancelled != nil && cancelled() {
			return "", "", ErrCancelled
		}

		outputKey := fmt.Sprintf("annotate_extract/%s/%s-region-%d.mp4", job.ProjectRef, uuid.New().String(), i)
		plan := RenderPlan{
			JobID: job.ID,
			Kind:  "annotate_extract_region",
			Inputs: []RenderInput{
				{Category: blob.CategorySource, Key: params.GameVideoRef},
			},
			Instructions: map[string]any{
				"start_sec":    region.StartSec,
				"end_sec":      region.EndSec,
				"display_name": region.DisplayName,
				"rating":       region.Rating,
			},
			OutputKey: outputKey,
		}
		if err := d.renderer.Render(ctx, plan, nil); err != nil {
			return "", "", fmt.Errorf("extract region %d: %w", i, err)
		}
		regionKeys[i] = outputKey

		if progress != nil {
			pct := rangeStart + int(float64(span)*float64(i+1)/float64(n))
			progress(pct, fmt.Sprintf("extracting-%d/%d", i+1, n), region.DisplayName)
		}
	}

	manifest, err := json.Marshal(struct {
		Regions []string `json:"regions"`
	}{Regions: regionKeys})
	if err != nil {
		return "", "", fmt.Errorf("encode region manifest: %w", err)
	}
	if err := d.store.UploadFile(dbctx.Context{Ctx: ctx}, blob.CategoryOutput, manifestKey, bytes.NewReader(manifest)); err != nil {
		return "", "", fmt.Errorf("upload region manifest: %w", err)
	}

	pr := NewPhaseRunner(progress, cancelled)
	pr.Enter(phaseAnnotateFinalizing, "finalizing")
	if _, err := d.store.GetObjectAttrs(ctx, blob.CategoryOutput, manifestKey); err != nil {
		return "", "", fmt.Errorf("manifest %q missing after upload: %w", manifestKey, err)
	}
	pr.Done("complete")

	filename := fmt.Sprintf("%s-annotate-extract-manifest.json", job.ProjectRef)
	return manifestKey, filename, nil
}
