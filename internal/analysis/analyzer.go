// Package analysis derives coaching feedback from a landmark track. It
// computes per-frame kinematic features (joint angles, lateral symmetry,
// hip tempo), evaluates them against a configurable rule table, and turns
// sustained threshold violations into a small ordered set of tips.
package analysis

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/formsight/formsight-server/internal/track"
)

// Options bound tip generation for one run.
type Options struct {
	// MinViolation is how long a feature must stay past its threshold
	// before it produces a tip; shorter excursions are treated as noise.
	MinViolation time.Duration
	// MaxTips caps the tips returned. Zero or negative means no cap.
	MaxTips int
}

// FeatureStats summarizes one feature over the frames that had a value.
type FeatureStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Frames int     `json:"frames"`
}

// Report is the analyzer output for one track.
type Report struct {
	Tips []Tip
	// Skipped lists rule categories whose required landmarks were missing
	// for the entire clip. They are diagnostics, not failures.
	Skipped []string
	Stats   map[string]FeatureStats
}

// Analyzer evaluates the rule table over a track's feature series.
type Analyzer struct {
	rules  *RuleSet
	opts   Options
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil rule set selects the compiled-in
// defaults.
func NewAnalyzer(rules *RuleSet, opts Options, logger *slog.Logger) *Analyzer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Analyzer{rules: rules, opts: opts, logger: logger}
}

// Analyze computes features for the track, collects sustained rule
// violations, and assembles the tip list: one tip per category (the most
// severe instance wins), ordered by severity descending then by earliest
// evidence frame, capped at MaxTips.
func (a *Analyzer) Analyze(tr *track.Track) *Report {
	features := ComputeFeatures(tr)
	rep := &Report{Stats: summarize(features)}

	best := make(map[string]Tip)
	seenSkip := make(map[string]bool)
	for _, r := range a.rules.Rules {
		s, ok := features[r.Feature]
		if !ok {
			continue
		}
		if s.ValidCount() == 0 {
			if !seenSkip[r.Category] {
				seenSkip[r.Category] = true
				rep.Skipped = append(rep.Skipped, r.Category)
			}
			continue
		}
		for _, v := range findRuns(s, r, tr.Timestamps, a.opts.MinViolation) {
			tip := Tip{
				Category:   r.Category,
				Severity:   r.severity(v.peak),
				Text:       r.Text,
				StartFrame: v.start,
				EndFrame:   v.end,
				StartMS:    tr.Timestamps[v.start].Milliseconds(),
				EndMS:      tr.Timestamps[v.end].Milliseconds(),
			}
			cur, exists := best[r.Category]
			if !exists || tip.Severity > cur.Severity ||
				(tip.Severity == cur.Severity && tip.StartFrame < cur.StartFrame) {
				best[r.Category] = tip
			}
		}
	}

	for _, tip := range best {
		rep.Tips = append(rep.Tips, tip)
	}
	sort.Slice(rep.Tips, func(i, j int) bool {
		if rep.Tips[i].Severity != rep.Tips[j].Severity {
			return rep.Tips[i].Severity > rep.Tips[j].Severity
		}
		return rep.Tips[i].StartFrame < rep.Tips[j].StartFrame
	})
	if a.opts.MaxTips > 0 && len(rep.Tips) > a.opts.MaxTips {
		rep.Tips = rep.Tips[:a.opts.MaxTips]
	}
	sort.Strings(rep.Skipped)

	if a.logger != nil {
		a.logger.Debug("analysis complete",
			"frames", tr.Len(),
			"tips", len(rep.Tips),
			"skipped_categories", len(rep.Skipped))
	}
	return rep
}

// summarize computes mean and standard deviation per feature, valid
// frames only.
func summarize(features map[string]Series) map[string]FeatureStats {
	out := make(map[string]FeatureStats, len(features))
	for name, s := range features {
		vals := make([]float64, 0, len(s.Values))
		for i, v := range s.Values {
			if s.Valid[i] {
				vals = append(vals, v)
			}
		}
		fs := FeatureStats{Frames: len(vals)}
		if len(vals) > 0 {
			fs.Mean = stat.Mean(vals, nil)
		}
		if len(vals) > 1 {
			fs.StdDev = stat.StdDev(vals, nil)
		}
		out[name] = fs
	}
	return out
}
