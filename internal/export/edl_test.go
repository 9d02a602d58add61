package export

import (
	"strings"
	"testing"

	"github.com/formsight/formsight-server/internal/analysis"
)

func TestGenerateEDL_SingleTip(t *testing.T) {
	tips := []analysis.Tip{{
		Category: "posture",
		Severity: 0.8,
		Text:     "Straighten your back.",
		StartMS:  0,
		EndMS:    2000,
	}}

	edl := GenerateEDL(Clip{Title: "Serve Review", MediaPath: "/media/serve.mp4", FrameRate: 30.0}, tips)

	if !strings.Contains(edl, "TITLE: Serve Review") {
		t.Fatalf("missing title in EDL: %q", edl)
	}
	if !strings.Contains(edl, "FCM: NON-DROP FRAME") {
		t.Fatalf("missing non-drop-frame FCM: %q", edl)
	}
	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00") {
		t.Fatalf("missing event line: %q", edl)
	}
	if !strings.Contains(edl, "* FROM CLIP NAME:  posture - Straighten your back.") {
		t.Fatalf("missing clip name comment: %q", edl)
	}
	if !strings.Contains(edl, "* MEDIA PATH:  /media/serve.mp4") {
		t.Fatalf("missing media path comment: %q", edl)
	}
}

func TestGenerateEDL_SequentialRecordTimeline(t *testing.T) {
	tips := []analysis.Tip{
		{Category: "posture", Text: "Straighten your back.", StartMS: 0, EndMS: 1000},
		{Category: "symmetry", Text: "Level your shoulders.", StartMS: 4000, EndMS: 5500},
	}

	edl := GenerateEDL(Clip{Title: "Multi", MediaPath: "/a.mp4", FrameRate: 30.0}, tips)

	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:01:00 00:00:00:00 00:00:01:00") {
		t.Fatalf("first event line mismatch: %q", edl)
	}
	// The second violation starts at 4s in the source but cuts in right
	// after the first on the record side.
	if !strings.Contains(edl, "002  AX       V     C        00:00:04:00 00:00:05:15 00:00:01:00 00:00:02:15") {
		t.Fatalf("second event line mismatch or bad record offset: %q", edl)
	}
}

func TestGenerateEDL_DropFrame(t *testing.T) {
	tips := []analysis.Tip{{Category: "posture", Text: "x", StartMS: 0, EndMS: 1000}}
	edl := GenerateEDL(Clip{Title: "Drop", MediaPath: "/x.mp4", FrameRate: 29.97}, tips)

	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM, got: %q", edl)
	}
}

func TestGenerateEDL_SkipsEmptySpans(t *testing.T) {
	tips := []analysis.Tip{
		{Category: "posture", Text: "instant", StartMS: 500, EndMS: 500},
		{Category: "symmetry", Text: "real", StartMS: 1000, EndMS: 2000},
	}

	edl := GenerateEDL(Clip{Title: "Gaps", MediaPath: "/x.mp4", FrameRate: 30.0}, tips)

	if strings.Contains(edl, "instant") {
		t.Fatalf("zero-length tip produced an event: %q", edl)
	}
	if !strings.Contains(edl, "001  AX") || strings.Contains(edl, "002  AX") {
		t.Fatalf("want exactly one event: %q", edl)
	}
}

func TestGenerateEDL_NoTips(t *testing.T) {
	edl := GenerateEDL(Clip{Title: "Empty", MediaPath: "/x.mp4", FrameRate: 30.0}, nil)

	if !strings.Contains(edl, "TITLE: Empty") {
		t.Fatalf("missing title: %q", edl)
	}
	if strings.Contains(edl, "AX") {
		t.Fatalf("events present for empty tip list: %q", edl)
	}
}

func TestMsToTimecode(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		fps  int
		want string
	}{
		{name: "zero", ms: 0, fps: 30, want: "00:00:00:00"},
		{name: "one second", ms: 1000, fps: 30, want: "00:00:01:00"},
		{name: "fractional second", ms: 500, fps: 30, want: "00:00:00:15"},
		{name: "one minute", ms: 60000, fps: 30, want: "00:01:00:00"},
		{name: "one hour", ms: 3600000, fps: 30, want: "01:00:00:00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := msToTimecode(tc.ms, tc.fps)
			if got != tc.want {
				t.Fatalf("msToTimecode(%d, %d) = %q, want %q", tc.ms, tc.fps, got, tc.want)
			}
		})
	}
}
