package pipeline

import (
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/config"
)

// Options are the per-run tuning knobs. Callers fill them from request
// options clamped against configured bounds; values are used as given, so
// zero means off where that makes sense (MaxTips, MaxClip) and a degenerate
// setting (SmoothWindow 1) is the identity.
type Options struct {
	MinVisibility float64
	MaxGap        time.Duration
	SmoothWindow  int
	MinViolation  time.Duration
	MaxTips       int
	MaxClip       time.Duration

	// Sport skips motion-based detection when set.
	Sport string
}

// DefaultOptions returns the baseline run options.
func DefaultOptions() Options {
	return Options{
		MinVisibility: config.DefaultMinVisibility,
		MaxGap:        config.DefaultMaxGapMs * time.Millisecond,
		SmoothWindow:  config.DefaultSmoothWindow,
		MinViolation:  config.DefaultMinViolationMs * time.Millisecond,
		MaxTips:       config.DefaultMaxTips,
		MaxClip:       config.DefaultMaxClipSeconds * time.Second,
	}
}

// StageStatus grades one stage of a finished run.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StagePartial StageStatus = "partial"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// Stage reports how one stage of a run ended.
type Stage struct {
	Status StageStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Stages collects per-stage outcomes for the result document.
type Stages struct {
	Decode   Stage `json:"decode"`
	Analyze  Stage `json:"analyze"`
	Render   Stage `json:"render"`
	Finalize Stage `json:"finalize"`
}

// FrameCounts summarizes decode-pass coverage: how many frames came out of
// the container, how many had no detectable pose, and how many carry at
// least one synthesized landmark.
type FrameCounts struct {
	Decoded      int `json:"decoded"`
	Undetected   int `json:"undetected"`
	Interpolated int `json:"interpolated"`
}

// Result is everything a finished run produced. VideoPath is empty when the
// overlay could not be encoded; tips survive such failures. A Result is
// returned even when the run fails so callers can persist stage outcomes.
type Result struct {
	State           State                            `json:"state"`
	Sport           string                           `json:"sport"`
	SportConfidence float64                          `json:"sport_confidence"`
	Tips            []analysis.Tip                   `json:"tips"`
	Stages          Stages                           `json:"stages"`
	Frames          FrameCounts                      `json:"frames"`
	Stats           map[string]analysis.FeatureStats `json:"stats,omitempty"`
	Diagnostics     []string                         `json:"diagnostics,omitempty"`
	DurationMS      int64                            `json:"duration_ms"`

	VideoPath string `json:"-"`
}
