package analysis

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRules_Valid(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules do not validate: %v", err)
	}
}

func TestLoadRules_EmptyPathReturnsDefaults(t *testing.T) {
	rs, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rs.Rules) != len(DefaultRules().Rules) {
		t.Errorf("got %d rules, want the %d defaults", len(rs.Rules), len(DefaultRules().Rules))
	}
}

func TestLoadRules_File(t *testing.T) {
	raw := `rules:
  - feature: left_elbow_angle
    category: posture
    when: below
    threshold: 140
    span: 30
    weight: 0.8
    text: Extend the arm.
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rs.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rs.Rules))
	}
	r := rs.Rules[0]
	if r.Threshold != 140 || r.When != Below || r.Category != "posture" {
		t.Errorf("parsed rule = %+v", r)
	}
}

func TestLoadRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "unknown feature",
			raw:     "rules:\n  - {feature: left_ear_angle, category: c, when: below, threshold: 1, weight: 1, text: t}\n",
			wantErr: "unknown feature",
		},
		{
			name:    "bad direction",
			raw:     "rules:\n  - {feature: hip_tempo, category: c, when: around, threshold: 1, weight: 1, text: t}\n",
			wantErr: "when must be",
		},
		{
			name:    "zero weight",
			raw:     "rules:\n  - {feature: hip_tempo, category: c, when: above, threshold: 1, weight: 0, text: t}\n",
			wantErr: "weight must be positive",
		},
		{
			name:    "missing text",
			raw:     "rules:\n  - {feature: hip_tempo, category: c, when: above, threshold: 1, weight: 1}\n",
			wantErr: "text is required",
		},
		{
			name:    "empty table",
			raw:     "rules: []\n",
			wantErr: "empty",
		},
		{
			name:    "not yaml",
			raw:     "{{nope",
			wantErr: "parse rules",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			if err := os.WriteFile(path, []byte(tt.raw), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadRules(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRuleViolated(t *testing.T) {
	below := Rule{When: Below, Threshold: 150}
	above := Rule{When: Above, Threshold: 0.9}

	if !below.violated(149) || below.violated(150) || below.violated(151) {
		t.Error("below rule misjudged")
	}
	if !above.violated(1.0) || above.violated(0.9) || above.violated(0.5) {
		t.Error("above rule misjudged")
	}
}

func TestRuleSeverity(t *testing.T) {
	r := Rule{When: Below, Threshold: 150, Span: 40, Weight: 0.8}

	tests := []struct {
		name string
		peak float64
		want float64
	}{
		{"zero excess", 0, 0.4},
		{"half span", 20, 0.6},
		{"full span", 40, 0.8},
		{"past span caps", 400, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.severity(tt.peak); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("severity(%v) = %v, want %v", tt.peak, got, tt.want)
			}
		})
	}

	flat := Rule{Weight: 0.7}
	if got := flat.severity(123); got != 0.7 {
		t.Errorf("severity with zero span = %v, want the full weight", got)
	}
}
