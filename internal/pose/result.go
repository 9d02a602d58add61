package pose

// Landmark is one named body point in a single frame. Positions are
// normalized to [0,1] in frame coordinates; Z is depth relative to the hip
// midpoint in the same scale, when the model provides it.
type Landmark struct {
	Name       string
	X, Y, Z    float64
	Visibility float64 // [0,1]
	Absent     bool    // below the visibility floor; position untrusted
}

// Result is the per-frame estimation outcome: either a complete set of
// canonical landmarks or an explicit undetected marker. The two cases are a
// tagged variant so downstream gap logic stays exhaustive; Landmarks is
// meaningful only when Detected is true.
type Result struct {
	Detected  bool
	Persons   int // subjects the model saw; >1 trips single-subject gating
	Landmarks []Landmark
}

// Undetected is the no-detection result.
var Undetected = Result{}

// ApplyVisibilityFloor demotes landmarks below minVisibility to absent. If
// every landmark falls below the floor the whole frame becomes undetected,
// which is a gap, not an error. The input is not mutated.
func ApplyVisibilityFloor(r Result, minVisibility float64) Result {
	if !r.Detected {
		return r
	}

	out := Result{Detected: true, Persons: r.Persons, Landmarks: make([]Landmark, len(r.Landmarks))}
	visible := 0
	for i, lm := range r.Landmarks {
		if lm.Visibility < minVisibility {
			lm.Absent = true
		}
		if !lm.Absent {
			visible++
		}
		out.Landmarks[i] = lm
	}

	if visible == 0 {
		return Result{Persons: r.Persons}
	}
	return out
}

// FrameResult pairs a Result with the frame it came from, for reassembly
// after the worker pool.
type FrameResult struct {
	Index int
	Res   Result
}
