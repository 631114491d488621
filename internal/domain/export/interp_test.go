package export

import "testing"

func TestInterpolateRectLinearBeforeFourKeyframes(t *testing.T) {
	kfs := []CropKeyframe{
		{SourceTimeSec: 0, Rect: Rect{X: 0, Y: 0, W: 100, H: 100}},
		{SourceTimeSec: 2, Rect: Rect{X: 20, Y: 0, W: 100, H: 100}},
	}
	got := InterpolateRect(kfs, 1)
	if got.X != 10 {
		t.Fatalf("expected linear midpoint X=10, got %v", got.X)
	}
}

func TestInterpolateRectClampsAtEndpoints(t *testing.T) {
	kfs := []CropKeyframe{
		{SourceTimeSec: 1, Rect: Rect{X: 5}},
		{SourceTimeSec: 2, Rect: Rect{X: 10}},
	}
	if got := InterpolateRect(kfs, -5); got.X != 5 {
		t.Fatalf("expected clamp to first keyframe, got %v", got.X)
	}
	if got := InterpolateRect(kfs, 99); got.X != 10 {
		t.Fatalf("expected clamp to last keyframe, got %v", got.X)
	}
}

func TestInterpolateRectSplineHitsKeyframesExactly(t *testing.T) {
	kfs := []CropKeyframe{
		{SourceTimeSec: 0, Rect: Rect{X: 0}},
		{SourceTimeSec: 1, Rect: Rect{X: 10}},
		{SourceTimeSec: 2, Rect: Rect{X: 5}},
		{SourceTimeSec: 3, Rect: Rect{X: 20}},
	}
	for _, kf := range kfs {
		got := InterpolateRect(kfs, kf.SourceTimeSec)
		if diff := got.X - kf.Rect.X; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("spline should pass through keyframe at t=%v: got %v want %v", kf.SourceTimeSec, got.X, kf.Rect.X)
		}
	}
}

func TestValidateParamsRejectsEmptyCropKeyframes(t *testing.T) {
	raw := []byte(`{"source_ref":"s3://x","crop_keyframes":[],"target_aspect":"9:16","target_frame_rate":30}`)
	if err := ValidateParams(KindFraming, raw); err == nil {
		t.Fatal("expected validation error for empty crop_keyframes")
	}
}

func TestValidateParamsAcceptsWellFormedFraming(t *testing.T) {
	raw := []byte(`{"source_ref":"s3://x","crop_keyframes":[{"source_time_sec":0,"rect":{"x":0,"y":0,"w":100,"h":100}}],"target_aspect":"9:16","target_frame_rate":30}`)
	if err := ValidateParams(KindFraming, raw); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
}

func TestValidateParamsRejectsUnknownTransition(t *testing.T) {
	raw := []byte(`{"clips":[{"source_ref":"a","crop_keyframes":[{"source_time_sec":0,"rect":{}}]}],"target_aspect":"16:9","transition":{"kind":"wipe","duration_sec":1}}`)
	if err := ValidateParams(KindMultiClip, raw); err == nil {
		t.Fatal("expected validation error for unknown transition kind")
	}
}
