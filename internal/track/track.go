// Package track assembles per-frame pose results into per-landmark time
// series and applies the gap-filling and smoothing policies. Everything here
// is a pure transformation: Build, FillGaps and Smooth never mutate their
// inputs, so a finished Track can be shared by concurrent readers without
// locking.
package track

import (
	"fmt"
	"time"

	"github.com/formsight/formsight-server/internal/pose"
)

// Provenance records how a sample's position came to be.
type Provenance int

const (
	// Gap marks a frame where the landmark had no reliable detection and
	// no interpolation was applied. Position values are meaningless.
	Gap Provenance = iota
	// Observed marks a position reported by the estimator.
	Observed
	// Interpolated marks a position synthesized across a short gap.
	Interpolated
)

func (p Provenance) String() string {
	switch p {
	case Observed:
		return "observed"
	case Interpolated:
		return "interpolated"
	default:
		return "gap"
	}
}

// Sample is one landmark observation at one frame.
type Sample struct {
	TS         time.Duration
	X, Y, Z    float64
	Visibility float64
	Prov       Provenance
}

// Track is the time-ordered per-landmark position history for one clip.
// Every series has exactly one sample per decoded frame; gaps are explicit,
// never elided. Timestamps are shared across all series.
type Track struct {
	Timestamps []time.Duration
	Series     map[string][]Sample

	// Undetected counts frames whose whole pose was undetected, set by Build.
	Undetected int
}

// Len returns the number of frames in the track.
func (t *Track) Len() int {
	return len(t.Timestamps)
}

// Landmark returns the series for one canonical landmark name, or nil.
func (t *Track) Landmark(name string) []Sample {
	return t.Series[name]
}

// Valid reports whether the landmark has a usable position at frame i
// (observed or interpolated, not a gap).
func (t *Track) Valid(name string, i int) bool {
	s := t.Series[name]
	if s == nil || i < 0 || i >= len(s) {
		return false
	}
	return s[i].Prov != Gap
}

// InterpolatedFrames counts frames where at least one landmark position was
// synthesized.
func (t *Track) InterpolatedFrames() int {
	n := 0
	for i := 0; i < t.Len(); i++ {
		for _, s := range t.Series {
			if s[i].Prov == Interpolated {
				n++
				break
			}
		}
	}
	return n
}

// Build assembles ordered per-frame results into a Track. Results must be in
// frame-index order and aligned one-to-one with timestamps; the pool's
// reassembly guarantees the former and the orchestrator the latter.
func Build(results []pose.FrameResult, timestamps []time.Duration) (*Track, error) {
	if len(results) != len(timestamps) {
		return nil, fmt.Errorf("got %d results for %d timestamps", len(results), len(timestamps))
	}

	t := &Track{
		Timestamps: timestamps,
		Series:     make(map[string][]Sample, len(pose.Names)),
	}
	for _, name := range pose.Names {
		t.Series[name] = make([]Sample, len(results))
	}

	for i, r := range results {
		if r.Index != i {
			return nil, fmt.Errorf("result %d has index %d; results must be ordered", i, r.Index)
		}

		if !r.Res.Detected {
			t.Undetected++
			for _, name := range pose.Names {
				t.Series[name][i] = Sample{TS: timestamps[i], Prov: Gap}
			}
			continue
		}

		for j, name := range pose.Names {
			lm := r.Res.Landmarks[j]
			if lm.Absent {
				t.Series[name][i] = Sample{TS: timestamps[i], Prov: Gap}
				continue
			}
			t.Series[name][i] = Sample{
				TS:         timestamps[i],
				X:          lm.X,
				Y:          lm.Y,
				Z:          lm.Z,
				Visibility: lm.Visibility,
				Prov:       Observed,
			}
		}
	}
	return t, nil
}

// FillGaps returns a new Track where each run of gap samples spanning no
// more than maxGap of clip time is filled by linear interpolation between
// its observed neighbors. The span is measured anchor to anchor in
// container time, so the policy is independent of frame rate. Runs longer
// than maxGap, and runs touching either end of the clip, stay gaps.
// Track length and landmark naming never change.
func FillGaps(t *Track, maxGap time.Duration) *Track {
	out := t.clone()
	if maxGap <= 0 {
		return out
	}

	for _, s := range out.Series {
		n := len(s)
		i := 0
		for i < n {
			if s[i].Prov != Gap {
				i++
				continue
			}

			// Maximal gap run [i..j]
			j := i
			for j+1 < n && s[j+1].Prov == Gap {
				j++
			}

			a, b := i-1, j+1
			if a >= 0 && b < n {
				span := out.Timestamps[b] - out.Timestamps[a]
				if span <= maxGap {
					fill(s, out.Timestamps, a, b)
				}
			}
			i = j + 1
		}
	}
	return out
}

// fill interpolates every gap sample strictly between observed anchors a
// and b, weighting by container time so variable frame spacing interpolates
// correctly.
func fill(s []Sample, ts []time.Duration, a, b int) {
	span := ts[b] - ts[a]
	vis := s[a].Visibility
	if s[b].Visibility < vis {
		vis = s[b].Visibility
	}

	for k := a + 1; k < b; k++ {
		alpha := float64(ts[k]-ts[a]) / float64(span)
		s[k] = Sample{
			TS:         ts[k],
			X:          s[a].X + alpha*(s[b].X-s[a].X),
			Y:          s[a].Y + alpha*(s[b].Y-s[a].Y),
			Z:          s[a].Z + alpha*(s[b].Z-s[a].Z),
			Visibility: vis,
			Prov:       Interpolated,
		}
	}
}

// Smooth returns a new Track with a centered moving average of width window
// applied to each landmark's positions independently. Gap samples neither
// contribute to nor receive smoothing, visibility is never averaged, and
// provenance flags are preserved. Apply only after FillGaps; smoothing raw
// series would smear positions across undecided gaps.
func Smooth(t *Track, window int) *Track {
	out := t.clone()
	if window <= 1 {
		return out
	}
	half := window / 2

	for _, s := range out.Series {
		n := len(s)
		smoothed := make([]Sample, n)
		copy(smoothed, s)

		for i := 0; i < n; i++ {
			if s[i].Prov == Gap {
				continue
			}

			var sx, sy, sz float64
			count := 0
			for k := i - half; k <= i+half; k++ {
				if k < 0 || k >= n || s[k].Prov == Gap {
					continue
				}
				sx += s[k].X
				sy += s[k].Y
				sz += s[k].Z
				count++
			}
			if count > 0 {
				smoothed[i].X = sx / float64(count)
				smoothed[i].Y = sy / float64(count)
				smoothed[i].Z = sz / float64(count)
			}
		}
		copy(s, smoothed)
	}
	return out
}

// clone deep-copies the series; timestamps are immutable and shared.
func (t *Track) clone() *Track {
	out := &Track{
		Timestamps: t.Timestamps,
		Series:     make(map[string][]Sample, len(t.Series)),
		Undetected: t.Undetected,
	}
	for name, s := range t.Series {
		cp := make([]Sample, len(s))
		copy(cp, s)
		out.Series[name] = cp
	}
	return out
}
