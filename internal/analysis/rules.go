package analysis

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Threshold directions.
const (
	Below = "below"
	Above = "above"
)

// Rule maps a sustained feature-threshold violation to one tip category.
type Rule struct {
	Feature   string  `yaml:"feature"`
	Category  string  `yaml:"category"`
	When      string  `yaml:"when"`
	Threshold float64 `yaml:"threshold"`
	// Span normalizes the peak excess past the threshold when grading
	// severity: a violation peaking Span or more past the threshold
	// scores the full Weight. Zero makes every violation score Weight.
	Span   float64 `yaml:"span"`
	Weight float64 `yaml:"weight"`
	Text   string  `yaml:"text"`
}

// violated reports whether a single value breaks the rule.
func (r Rule) violated(v float64) bool {
	if r.When == Below {
		return v < r.Threshold
	}
	return v > r.Threshold
}

// excess is the distance past the threshold, zero when not violating.
func (r Rule) excess(v float64) float64 {
	if !r.violated(v) {
		return 0
	}
	return math.Abs(v - r.Threshold)
}

// severity grades one violating run by its peak excess, capped at Weight.
func (r Rule) severity(peak float64) float64 {
	if r.Span <= 0 {
		return r.Weight
	}
	frac := math.Min(peak/r.Span, 1)
	return r.Weight * (0.5 + 0.5*frac)
}

// RuleSet is the threshold table driving tip generation.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the compiled-in table used when no rules file is
// configured.
func DefaultRules() *RuleSet {
	return &RuleSet{Rules: []Rule{
		{
			Feature:   FeatureLeftElbowAngle,
			Category:  "posture",
			When:      Below,
			Threshold: 150,
			Span:      45,
			Weight:    0.9,
			Text:      "Keep the hitting elbow extended through contact; it is collapsing during the swing.",
		},
		{
			Feature:   FeatureLeftKneeAngle,
			Category:  "stance",
			When:      Above,
			Threshold: 172,
			Span:      8,
			Weight:    0.6,
			Text:      "Bend the knees more; a straight-leg stance slows your first step.",
		},
		{
			Feature:   FeatureElbowSymmetry,
			Category:  "symmetry",
			When:      Above,
			Threshold: 35,
			Span:      30,
			Weight:    0.7,
			Text:      "Large left/right arm asymmetry; mirror the motion with the off arm to stay balanced.",
		},
		{
			Feature:   FeatureHipTempo,
			Category:  "tempo",
			When:      Above,
			Threshold: 0.9,
			Span:      0.5,
			Weight:    0.5,
			Text:      "Rushed hip movement; slow the preparation and accelerate through contact instead.",
		},
	}}
}

// LoadRules reads a YAML rule table from path. An empty path returns the
// defaults.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return &rs, nil
}

// Validate rejects tables that reference unknown features or carry
// unusable thresholds.
func (rs *RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("rule table is empty")
	}
	for i, r := range rs.Rules {
		if !knownFeature(r.Feature) {
			return fmt.Errorf("rule %d: unknown feature %q", i, r.Feature)
		}
		if r.When != Below && r.When != Above {
			return fmt.Errorf("rule %d: when must be %q or %q, got %q", i, Below, Above, r.When)
		}
		if r.Category == "" {
			return fmt.Errorf("rule %d: category is required", i)
		}
		if r.Weight <= 0 {
			return fmt.Errorf("rule %d: weight must be positive", i)
		}
		if r.Text == "" {
			return fmt.Errorf("rule %d: text is required", i)
		}
	}
	return nil
}

func knownFeature(name string) bool {
	for _, f := range featureNames {
		if f == name {
			return true
		}
	}
	return false
}
