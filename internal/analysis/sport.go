package analysis

import (
	"math"

	"github.com/formsight/formsight-server/internal/pose"
	"github.com/formsight/formsight-server/internal/track"
)

// Sport labels GuessSport can return.
const (
	SportTennis  = "tennis"
	SportUnknown = "unknown"
)

// SportGuess is a heuristic classification of the athlete's sport.
type SportGuess struct {
	Sport      string  `json:"sport"`
	Confidence float64 `json:"confidence"`
}

// Stroke-posture floors: the arm reaches sideways with the elbow bent in
// the hitting band.
const (
	strokeMinArmLen   = 0.20
	strokeMinHoriz    = 0.15
	strokeMinElbowDeg = 60
	strokeMaxElbowDeg = 120
)

// GuessSport classifies the clip from arm posture alone: racket sports
// show sustained sideways arm reach with the elbow bent in the hitting
// band. It commits to a label only when at least six frames and a fifth
// of the usable frames agree.
func GuessSport(tr *track.Track) SportGuess {
	sh := tr.Landmark(pose.LeftShoulder)
	el := tr.Landmark(pose.LeftElbow)
	wr := tr.Landmark(pose.LeftWrist)

	hits, total := 0, 0
	for i := 0; i < tr.Len(); i++ {
		if !tr.Valid(pose.LeftShoulder, i) || !tr.Valid(pose.LeftElbow, i) || !tr.Valid(pose.LeftWrist, i) {
			continue
		}
		total++
		armLen := math.Hypot(el[i].X-sh[i].X, el[i].Y-sh[i].Y)
		horiz := math.Abs(el[i].X - sh[i].X)
		ang := angle(sh[i].X, sh[i].Y, el[i].X, el[i].Y, wr[i].X, wr[i].Y)
		if armLen > strokeMinArmLen && horiz > strokeMinHoriz &&
			ang > strokeMinElbowDeg && ang < strokeMaxElbowDeg {
			hits++
		}
	}

	if total == 0 || hits < max(6, total/5) {
		return SportGuess{Sport: SportUnknown}
	}
	ratio := float64(hits) / float64(total)
	// Half the frames looking like strokes reads as full confidence.
	return SportGuess{Sport: SportTennis, Confidence: math.Min(1, ratio*2)}
}
