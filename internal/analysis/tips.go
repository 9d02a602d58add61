package analysis

import "time"

// Tip is one piece of coaching feedback with the frame range it was
// derived from. Field names match the wire shape of the result document.
type Tip struct {
	Category   string  `json:"category"`
	Severity   float64 `json:"severity"`
	Text       string  `json:"text"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
}

// violation is one sustained run of frames past a rule threshold.
// Frame indexes are inclusive.
type violation struct {
	start, end int
	peak       float64
}

// findRuns scans a feature series for sustained violations of one rule.
// A frame without a valid value ends the current run; runs spanning less
// than minDur of container time are discarded.
func findRuns(s Series, r Rule, ts []time.Duration, minDur time.Duration) []violation {
	var runs []violation
	start := -1
	peak := 0.0

	flush := func(end int) {
		if start < 0 {
			return
		}
		if ts[end]-ts[start] >= minDur {
			runs = append(runs, violation{start: start, end: end, peak: peak})
		}
		start, peak = -1, 0
	}

	for i := range s.Values {
		if s.Valid[i] && r.violated(s.Values[i]) {
			if start < 0 {
				start = i
			}
			if e := r.excess(s.Values[i]); e > peak {
				peak = e
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(s.Values) - 1)
	return runs
}
