// Package jobs persists analysis jobs in SQLite and drives them through the
// pipeline: the service validates and enqueues submissions, the runner claims
// pending jobs one at a time and records their result documents.
package jobs

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/config"
	"github.com/formsight/formsight-server/internal/pipeline"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one submitted clip and everything the server knows about it. The
// Options and Result fields hold raw JSON exactly as stored; SourcePath and
// ResultPath are server-local and never serialized.
type Job struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Sport       string    `json:"sport"`
	VideoURL    string    `json:"video_url"`
	OutputURL   string    `json:"output_url"`
	SourcePath  string    `json:"-"`
	ResultPath  string    `json:"-"`
	Options     string    `json:"-"`
	Result      string    `json:"-"`
	Error       string    `json:"error"`
	Progress    int       `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"-"`
}

func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// ParseResult decodes the job's stored result document. Returns nil when the
// job has not produced one yet.
func (j *Job) ParseResult() (*ResultDoc, error) {
	if j.Result == "" {
		return nil, nil
	}
	var doc ResultDoc
	if err := json.Unmarshal([]byte(j.Result), &doc); err != nil {
		return nil, fmt.Errorf("parse result document: %w", err)
	}
	return &doc, nil
}

// Options is the subset of pipeline tunables a submitter may override.
// Pointer fields distinguish absent from zero.
type Options struct {
	MinVisibility          *float64 `json:"min_visibility,omitempty"`
	MaxGapDurationMS       *int     `json:"max_gap_duration_ms,omitempty"`
	SmoothingWindow        *int     `json:"smoothing_window,omitempty"`
	MinViolationDurationMS *int     `json:"min_violation_duration_ms,omitempty"`
	MaxTips                *int     `json:"max_tips,omitempty"`
	MaxClipDurationS       *int     `json:"max_clip_duration_s,omitempty"`
}

// ParseOptions decodes stored options JSON; empty input means no overrides.
func ParseOptions(raw string) (Options, error) {
	var o Options
	if raw == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Options{}, fmt.Errorf("parse options: %w", err)
	}
	return o, nil
}

// Resolve merges the overrides onto the pipeline defaults, clamping each
// value into its safe range. The clip duration cap can only be lowered from
// the server default, never raised.
func (o Options) Resolve(sport string) pipeline.Options {
	p := pipeline.DefaultOptions()
	p.Sport = sport
	if o.MinVisibility != nil {
		p.MinVisibility = clampFloat(*o.MinVisibility, 0, 1)
	}
	if o.MaxGapDurationMS != nil {
		p.MaxGap = time.Duration(clampInt(*o.MaxGapDurationMS, 0, 5000)) * time.Millisecond
	}
	if o.SmoothingWindow != nil {
		p.SmoothWindow = clampInt(*o.SmoothingWindow, 1, 31)
	}
	if o.MinViolationDurationMS != nil {
		p.MinViolation = time.Duration(clampInt(*o.MinViolationDurationMS, 0, 10000)) * time.Millisecond
	}
	if o.MaxTips != nil {
		p.MaxTips = clampInt(*o.MaxTips, 1, 10)
	}
	if o.MaxClipDurationS != nil {
		p.MaxClip = time.Duration(clampInt(*o.MaxClipDurationS, 1, config.DefaultMaxClipSeconds)) * time.Second
	}
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// ResultDoc is the stored result document: returned by the API, published
// over MQTT, and printed by the offline CLI.
type ResultDoc struct {
	JobID           string               `json:"job_id"`
	Sport           string               `json:"sport"`
	SportConfidence float64              `json:"sport_confidence"`
	State           pipeline.State       `json:"state"`
	Video           *VideoRef            `json:"video"`
	Tips            []analysis.Tip       `json:"tips"`
	Focus           []analysis.Drill     `json:"focus"`
	Stages          pipeline.Stages      `json:"stages"`
	Frames          pipeline.FrameCounts `json:"frames"`
	Diagnostics     []string             `json:"diagnostics,omitempty"`
	DurationMS      int64                `json:"duration_ms"`
}

// VideoRef points at the annotated video: an object name served by this
// server, or the caller's URL after a successful push. A nil ref marshals as
// null, meaning no annotated video exists.
type VideoRef struct {
	Object string `json:"object,omitempty"`
	URL    string `json:"url,omitempty"`
}

// BuildResult maps a finished pipeline run onto the stored document.
func BuildResult(jobID string, res *pipeline.Result, videoObject, videoURL string) *ResultDoc {
	doc := &ResultDoc{
		JobID:           jobID,
		Sport:           res.Sport,
		SportConfidence: res.SportConfidence,
		State:           res.State,
		Tips:            res.Tips,
		Focus:           analysis.DefaultDrills(res.Sport),
		Stages:          res.Stages,
		Frames:          res.Frames,
		Diagnostics:     res.Diagnostics,
		DurationMS:      res.DurationMS,
	}
	if doc.Tips == nil {
		doc.Tips = []analysis.Tip{}
	}
	switch {
	case videoURL != "":
		doc.Video = &VideoRef{URL: videoURL}
	case videoObject != "":
		doc.Video = &VideoRef{Object: videoObject}
	}
	return doc
}
