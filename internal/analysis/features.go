package analysis

import (
	"math"

	"github.com/formsight/formsight-server/internal/pose"
	"github.com/formsight/formsight-server/internal/track"
)

// Feature names rules can reference.
const (
	FeatureLeftElbowAngle  = "left_elbow_angle"
	FeatureRightElbowAngle = "right_elbow_angle"
	FeatureLeftKneeAngle   = "left_knee_angle"
	FeatureRightKneeAngle  = "right_knee_angle"
	FeatureElbowSymmetry   = "elbow_symmetry"
	FeatureKneeSymmetry    = "knee_symmetry"
	FeatureHipTempo        = "hip_tempo"
)

var featureNames = []string{
	FeatureLeftElbowAngle,
	FeatureRightElbowAngle,
	FeatureLeftKneeAngle,
	FeatureRightKneeAngle,
	FeatureElbowSymmetry,
	FeatureKneeSymmetry,
	FeatureHipTempo,
}

// Series is one kinematic feature sampled per frame. Valid is false where
// the frame lacked a landmark the feature needs; the Value there is zero
// and must be ignored.
type Series struct {
	Name   string
	Values []float64
	Valid  []bool
}

// ValidCount reports how many frames carry a usable value.
func (s Series) ValidCount() int {
	n := 0
	for _, ok := range s.Valid {
		if ok {
			n++
		}
	}
	return n
}

// ComputeFeatures derives every known feature series from the track.
// Interpolated samples participate like observed ones; genuine gaps
// invalidate the frame for any feature touching the missing landmark.
func ComputeFeatures(tr *track.Track) map[string]Series {
	leftElbow := jointAngle(tr, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist, FeatureLeftElbowAngle)
	rightElbow := jointAngle(tr, pose.RightShoulder, pose.RightElbow, pose.RightWrist, FeatureRightElbowAngle)
	leftKnee := jointAngle(tr, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle, FeatureLeftKneeAngle)
	rightKnee := jointAngle(tr, pose.RightHip, pose.RightKnee, pose.RightAnkle, FeatureRightKneeAngle)

	return map[string]Series{
		FeatureLeftElbowAngle:  leftElbow,
		FeatureRightElbowAngle: rightElbow,
		FeatureLeftKneeAngle:   leftKnee,
		FeatureRightKneeAngle:  rightKnee,
		FeatureElbowSymmetry:   symmetry(leftElbow, rightElbow, FeatureElbowSymmetry),
		FeatureKneeSymmetry:    symmetry(leftKnee, rightKnee, FeatureKneeSymmetry),
		FeatureHipTempo:        hipTempo(tr),
	}
}

// jointAngle computes the angle at vertex b of the a-b-c landmark triple,
// per frame, in degrees.
func jointAngle(tr *track.Track, a, b, c, name string) Series {
	n := tr.Len()
	s := Series{Name: name, Values: make([]float64, n), Valid: make([]bool, n)}
	sa, sb, sc := tr.Landmark(a), tr.Landmark(b), tr.Landmark(c)
	for i := 0; i < n; i++ {
		if !tr.Valid(a, i) || !tr.Valid(b, i) || !tr.Valid(c, i) {
			continue
		}
		s.Values[i] = angle(sa[i].X, sa[i].Y, sb[i].X, sb[i].Y, sc[i].X, sc[i].Y)
		s.Valid[i] = true
	}
	return s
}

// symmetry is the absolute difference between a mirrored feature pair,
// valid only where both sides are.
func symmetry(left, right Series, name string) Series {
	n := len(left.Values)
	s := Series{Name: name, Values: make([]float64, n), Valid: make([]bool, n)}
	for i := 0; i < n; i++ {
		if left.Valid[i] && right.Valid[i] {
			s.Values[i] = math.Abs(left.Values[i] - right.Values[i])
			s.Valid[i] = true
		}
	}
	return s
}

// hipTempo is the inter-frame speed of the hip midpoint in normalized
// image units per second. The first frame has no predecessor and is
// never valid.
func hipTempo(tr *track.Track) Series {
	n := tr.Len()
	s := Series{Name: FeatureHipTempo, Values: make([]float64, n), Valid: make([]bool, n)}
	lh, rh := tr.Landmark(pose.LeftHip), tr.Landmark(pose.RightHip)
	for i := 1; i < n; i++ {
		if !tr.Valid(pose.LeftHip, i) || !tr.Valid(pose.RightHip, i) ||
			!tr.Valid(pose.LeftHip, i-1) || !tr.Valid(pose.RightHip, i-1) {
			continue
		}
		dt := (tr.Timestamps[i] - tr.Timestamps[i-1]).Seconds()
		if dt <= 0 {
			continue
		}
		x0, y0 := midpoint(lh[i-1], rh[i-1])
		x1, y1 := midpoint(lh[i], rh[i])
		s.Values[i] = math.Hypot(x1-x0, y1-y0) / dt
		s.Valid[i] = true
	}
	return s
}

func midpoint(a, b track.Sample) (float64, float64) {
	return (a.X + b.X) / 2, (a.Y + b.Y) / 2
}

// angle returns the angle in degrees at vertex (bx, by) formed by the
// segments toward (ax, ay) and (cx, cy), clamped into [0, 180].
func angle(ax, ay, bx, by, cx, cy float64) float64 {
	v1x, v1y := ax-bx, ay-by
	v2x, v2y := cx-bx, cy-by
	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 < 1e-6 {
		n1 = 1e-6
	}
	if n2 < 1e-6 {
		n2 = 1e-6
	}
	dot := (v1x*v2x + v1y*v2y) / (n1 * n2)
	dot = math.Max(math.Min(dot, 1), -1)
	return math.Acos(dot) * 180 / math.Pi
}
