package export

import (
	"encoding/json"
	"fmt"
)

// Rect is a crop rectangle in source pixel space.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CropKeyframe pins a crop rectangle to a source timestamp.
type CropKeyframe struct {
	SourceTimeSec float64 `json:"source_time_sec"`
	Rect          Rect    `json:"rect"`
}

// Segment is a speed/trim range applied on top of the base crop timeline.
type Segment struct {
	StartSec        float64  `json:"start_sec"`
	EndSec          float64  `json:"end_sec"`
	SpeedMultiplier float64  `json:"speed_multiplier"`
	TrimStartSec    *float64 `json:"trim_start_sec,omitempty"`
	TrimEndSec      *float64 `json:"trim_end_sec,omitempty"`
	PreservePitch   bool     `json:"preserve_pitch"`
}

// FramingParams is the framing driver's input parameter shape (spec §4.3).
type FramingParams struct {
	SourceRef       string         `json:"source_ref"`
	CropKeyframes   []CropKeyframe `json:"crop_keyframes"`
	Segments        []Segment      `json:"segments,omitempty"`
	TargetAspect    string         `json:"target_aspect"`
	TargetFrameRate int            `json:"target_frame_rate"`
	IncludeAudio    bool           `json:"include_audio"`
}

func (p FramingParams) Validate() error {
	if p.SourceRef == "" {
		return fmt.Errorf("source_ref is required")
	}
	if len(p.CropKeyframes) == 0 {
		return fmt.Errorf("crop_keyframes must be non-empty")
	}
	if p.TargetAspect == "" {
		return fmt.Errorf("target_aspect is required")
	}
	if p.TargetFrameRate <= 0 {
		return fmt.Errorf("target_frame_rate must be positive")
	}
	return nil
}

// OverlayLayerKind is the closed set of overlay primitives.
type OverlayLayerKind string

const (
	OverlayKindHighlightEllipse OverlayLayerKind = "highlight_ellipse"
	OverlayKindText             OverlayLayerKind = "text"
	OverlayKindBallEffect       OverlayLayerKind = "ball_effect"
	OverlayKindScanArc          OverlayLayerKind = "scan_arc"
	OverlayKindSpacePolygon     OverlayLayerKind = "space_polygon"
	OverlayKindDefenderMarker   OverlayLayerKind = "defender_marker"
	OverlayKindThroughBallLine  OverlayLayerKind = "through_ball_line"
)

// OverlayKeyframe carries a layer kind's parameters at a point in time.
// Params is opaque per kind: numeric fields interpolate per the spline/linear
// rule, discrete fields (color, text, shape) step-change at the keyframe.
type OverlayKeyframe struct {
	TimeSec float64         `json:"time_sec"`
	Params  json.RawMessage `json:"params"`
}

type OverlayLayer struct {
	Kind      OverlayLayerKind  `json:"kind"`
	ZOrder    int               `json:"z_order"`
	Visible   bool              `json:"visible"`
	Keyframes []OverlayKeyframe `json:"keyframes"`
}

type OverlayParams struct {
	WorkingVideoRef string         `json:"working_video_ref"`
	Layers          []OverlayLayer `json:"layers"`
}

func (p OverlayParams) Validate() error {
	if p.WorkingVideoRef == "" {
		return fmt.Errorf("working_video_ref is required")
	}
	if len(p.Layers) == 0 {
		return fmt.Errorf("layers must be non-empty")
	}
	return nil
}

// TransitionKind closes the set of multi-clip joins.
type TransitionKind string

const (
	TransitionCut      TransitionKind = "cut"
	TransitionFade     TransitionKind = "fade"
	TransitionDissolve TransitionKind = "dissolve"
)

type ClipSpec struct {
	SourceRef     string         `json:"source_ref"`
	CropKeyframes []CropKeyframe `json:"crop_keyframes"`
	Segments      []Segment      `json:"segments,omitempty"`
}

type Transition struct {
	Kind        TransitionKind `json:"kind"`
	DurationSec float64        `json:"duration_sec"`
}

type MultiClipParams struct {
	Clips        []ClipSpec     `json:"clips"`
	TargetAspect string         `json:"target_aspect"`
	Transition   Transition     `json:"transition"`
}

func (p MultiClipParams) Validate() error {
	if len(p.Clips) == 0 {
		return fmt.Errorf("clips must be non-empty")
	}
	if p.TargetAspect == "" {
		return fmt.Errorf("target_aspect is required")
	}
	switch p.Transition.Kind {
	case TransitionCut, TransitionFade, TransitionDissolve:
	default:
		return fmt.Errorf("unknown transition kind %q", p.Transition.Kind)
	}
	return nil
}

type ClipRegion struct {
	StartSec    float64  `json:"start_sec"`
	EndSec      float64  `json:"end_sec"`
	DisplayName string   `json:"display_name"`
	Rating      *float64 `json:"rating,omitempty"`
}

type AnnotateExtractParams struct {
	GameVideoRef string       `json:"game_video_ref"`
	Regions      []ClipRegion `json:"regions"`
}

func (p AnnotateExtractParams) Validate() error {
	if p.GameVideoRef == "" {
		return fmt.Errorf("game_video_ref is required")
	}
	if len(p.Regions) == 0 {
		return fmt.Errorf("regions must be non-empty")
	}
	for i, r := range p.Regions {
		if r.EndSec <= r.StartSec {
			return fmt.Errorf("region %d: end_sec must be greater than start_sec", i)
		}
	}
	return nil
}

// ValidateParams decodes raw submitted params against the kind's schema,
// returning a validation error suitable for a 400 response. It never
// mutates the stored document: the Job Store persists params verbatim.
func ValidateParams(kind Kind, raw json.RawMessage) error {
	switch kind {
	case KindFraming:
		var p FramingParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("malformed framing params: %w", err)
		}
		return p.Validate()
	case KindOverlay:
		var p OverlayParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("malformed overlay params: %w", err)
		}
		return p.Validate()
	case KindMultiClip:
		var p MultiClipParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("malformed multi_clip params: %w", err)
		}
		return p.Validate()
	case KindAnnotateExtract:
		var p AnnotateExtractParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("malformed annotate_extract params: %w", err)
		}
		return p.Validate()
	default:
		return fmt.Errorf("unknown export kind %q", kind)
	}
}
