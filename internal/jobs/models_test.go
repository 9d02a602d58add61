package jobs

import (
	"regexp"
	"testing"
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/pipeline"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestNewID_Format(t *testing.T) {
	idRE := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !idRE.MatchString(id) {
			t.Fatalf("NewID() = %q, want hex groups 8-4-4-4-12", id)
		}
		if seen[id] {
			t.Fatalf("NewID() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions("")
	if err != nil {
		t.Fatalf("ParseOptions(empty) error = %v", err)
	}
	if o.MinVisibility != nil || o.MaxTips != nil {
		t.Error("ParseOptions(empty) set overrides")
	}

	o, err = ParseOptions(`{"min_visibility": 0.7, "max_tips": 5}`)
	if err != nil {
		t.Fatalf("ParseOptions() error = %v", err)
	}
	if o.MinVisibility == nil || *o.MinVisibility != 0.7 {
		t.Errorf("MinVisibility = %v, want 0.7", o.MinVisibility)
	}
	if o.MaxTips == nil || *o.MaxTips != 5 {
		t.Errorf("MaxTips = %v, want 5", o.MaxTips)
	}
	if o.SmoothingWindow != nil {
		t.Error("SmoothingWindow set without being present in the JSON")
	}

	if _, err := ParseOptions(`{broken`); err == nil {
		t.Error("ParseOptions(broken JSON) error = nil")
	}
}

func TestResolve_DefaultsWhenEmpty(t *testing.T) {
	got := Options{}.Resolve("tennis")
	want := pipeline.DefaultOptions()
	want.Sport = "tennis"

	if got != want {
		t.Errorf("Resolve() = %+v, want defaults %+v", got, want)
	}
}

func TestResolve_AppliesAndClamps(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		check func(t *testing.T, p pipeline.Options)
	}{
		{
			name: "plain overrides",
			opts: Options{MinVisibility: floatPtr(0.8), SmoothingWindow: intPtr(7), MaxTips: intPtr(2)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.MinVisibility != 0.8 || p.SmoothWindow != 7 || p.MaxTips != 2 {
					t.Errorf("got %+v", p)
				}
			},
		},
		{
			name: "visibility clamped to unit range",
			opts: Options{MinVisibility: floatPtr(1.5)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.MinVisibility != 1 {
					t.Errorf("MinVisibility = %v, want 1", p.MinVisibility)
				}
			},
		},
		{
			name: "negative visibility floors at zero",
			opts: Options{MinVisibility: floatPtr(-0.3)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.MinVisibility != 0 {
					t.Errorf("MinVisibility = %v, want 0", p.MinVisibility)
				}
			},
		},
		{
			name: "window and tips stay in range",
			opts: Options{SmoothingWindow: intPtr(0), MaxTips: intPtr(99)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.SmoothWindow != 1 {
					t.Errorf("SmoothWindow = %d, want 1", p.SmoothWindow)
				}
				if p.MaxTips != 10 {
					t.Errorf("MaxTips = %d, want 10", p.MaxTips)
				}
			},
		},
		{
			name: "durations clamp in milliseconds",
			opts: Options{MaxGapDurationMS: intPtr(99999), MinViolationDurationMS: intPtr(-5)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.MaxGap != 5*time.Second {
					t.Errorf("MaxGap = %v, want 5s", p.MaxGap)
				}
				if p.MinViolation != 0 {
					t.Errorf("MinViolation = %v, want 0", p.MinViolation)
				}
			},
		},
		{
			name: "clip cap can only shrink",
			opts: Options{MaxClipDurationS: intPtr(600)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.MaxClip != 60*time.Second {
					t.Errorf("MaxClip = %v, want 60s", p.MaxClip)
				}
			},
		},
		{
			name: "clip cap shrinks when asked",
			opts: Options{MaxClipDurationS: intPtr(10)},
			check: func(t *testing.T, p pipeline.Options) {
				if p.MaxClip != 10*time.Second {
					t.Errorf("MaxClip = %v, want 10s", p.MaxClip)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.opts.Resolve(""))
		})
	}
}

func completedResult() *pipeline.Result {
	return &pipeline.Result{
		State:           pipeline.StateCompleted,
		Sport:           "tennis",
		SportConfidence: 0.8,
		Tips: []analysis.Tip{
			{Category: "posture", Severity: 0.6, Text: "Straighten your back.", StartFrame: 3, EndFrame: 20},
		},
		Stages: pipeline.Stages{
			Decode:   pipeline.Stage{Status: pipeline.StageSuccess},
			Analyze:  pipeline.Stage{Status: pipeline.StageSuccess},
			Render:   pipeline.Stage{Status: pipeline.StageSuccess},
			Finalize: pipeline.Stage{Status: pipeline.StageSuccess},
		},
		Frames:     pipeline.FrameCounts{Decoded: 60, Undetected: 1, Interpolated: 1},
		DurationMS: 1234,
		VideoPath:  "/data/results/job-1.mp4",
	}
}

func TestBuildResult_VideoReference(t *testing.T) {
	res := completedResult()

	doc := BuildResult("job-1", res, "job-1.mp4", "")
	if doc.Video == nil || doc.Video.Object != "job-1.mp4" || doc.Video.URL != "" {
		t.Errorf("Video = %+v, want object job-1.mp4", doc.Video)
	}

	doc = BuildResult("job-1", res, "job-1.mp4", "https://example.com/out.mp4")
	if doc.Video == nil || doc.Video.URL != "https://example.com/out.mp4" {
		t.Errorf("Video = %+v, want caller URL", doc.Video)
	}

	doc = BuildResult("job-1", res, "", "")
	if doc.Video != nil {
		t.Errorf("Video = %+v, want nil", doc.Video)
	}
}

func TestBuildResult_FillsDefaults(t *testing.T) {
	res := completedResult()
	res.Tips = nil

	doc := BuildResult("job-1", res, "", "")
	if doc.Tips == nil || len(doc.Tips) != 0 {
		t.Errorf("Tips = %v, want empty non-nil slice", doc.Tips)
	}
	if len(doc.Focus) == 0 {
		t.Error("Focus is empty, want drills for the detected sport")
	}
	if doc.JobID != "job-1" || doc.Sport != "tennis" || doc.DurationMS != 1234 {
		t.Errorf("doc = %+v, missing copied fields", doc)
	}
}

func TestJob_ParseResult(t *testing.T) {
	job := &Job{}
	doc, err := job.ParseResult()
	if err != nil || doc != nil {
		t.Fatalf("ParseResult(empty) = %v, %v, want nil, nil", doc, err)
	}

	job.Result = `{"job_id": "job-1", "state": "completed", "video": {"object": "job-1.mp4"}}`
	doc, err = job.ParseResult()
	if err != nil {
		t.Fatalf("ParseResult() error = %v", err)
	}
	if doc.JobID != "job-1" || doc.State != pipeline.StateCompleted {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Video == nil || doc.Video.Object != "job-1.mp4" {
		t.Errorf("Video = %+v", doc.Video)
	}

	job.Result = "{broken"
	if _, err := job.ParseResult(); err == nil {
		t.Error("ParseResult(broken) error = nil")
	}
}
