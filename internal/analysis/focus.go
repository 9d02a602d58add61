package analysis

import (
	"fmt"
	"strings"
)

// Drill is one recommended practice item.
type Drill struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// focusTable maps sport → focus area → drill texts.
var focusTable = map[string]map[string][]string{
	SportTennis: {
		"swing": {
			"Keep elbow high through contact to avoid power loss.",
			"Brush up on the ball for more topspin (wrist snap).",
			"Finish over the shoulder for consistent follow-through.",
		},
		"footwork": {
			"Add a split step before opponent contact for quicker reactions.",
			"Shorten recovery steps and stay centered after the shot.",
			"Transfer weight to the front foot at contact for balance.",
		},
		"preparation": {
			"Coil shoulders ~90° on takeback to load torque.",
			"Lower ready position to improve anticipation.",
			"Check grip (semi-western recommended for topspin).",
		},
	},
}

// Recommend returns up to limit drills for a sport and focus area, with
// generic fallbacks when either is unknown. Limit defaults to 3.
func Recommend(sport, focus string, limit int) []Drill {
	if limit <= 0 {
		limit = 3
	}
	sport = strings.ToLower(strings.TrimSpace(sport))
	focus = strings.ToLower(strings.TrimSpace(focus))

	areas, ok := focusTable[sport]
	if !ok {
		return []Drill{{Text: "General tip: keep movements controlled and repeatable."}}
	}
	texts, ok := areas[focus]
	if !ok {
		return []Drill{{Text: fmt.Sprintf("No specific drills for %q. Try another focus.", focus)}}
	}
	if len(texts) > limit {
		texts = texts[:limit]
	}
	out := make([]Drill, len(texts))
	for i, t := range texts {
		out[i] = Drill{ID: i, Text: t}
	}
	return out
}

// DefaultDrills is the drill list attached to a completed result when the
// caller named no focus area.
func DefaultDrills(sport string) []Drill {
	if strings.EqualFold(sport, SportTennis) {
		return []Drill{
			{ID: 0, Text: "Shadow swings with high elbow finish (10 reps)."},
			{ID: 1, Text: "Split-step before feed, focus on balance (3 sets of 10)."},
			{ID: 2, Text: "Brush up on ball for topspin (mini-court, 5 minutes)."},
		}
	}
	return []Drill{{Text: "Light mobility + controlled repetitions to build consistent form."}}
}
