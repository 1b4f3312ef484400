package models

import (
	"fmt"
	"strings"
)

// Target is a predicted health dimension
type Target string

const (
	TargetGut    Target = "gut"
	TargetSkin   Target = "skin"
	TargetMood   Target = "mood"
	TargetStress Target = "stress"
)

// AllTargets lists every supported target in a stable order
var AllTargets = []Target{TargetGut, TargetSkin, TargetMood, TargetStress}

// Comparison is the direction a risk threshold is evaluated in
type Comparison string

const (
	AtLeast Comparison = "gte"
	AtMost  Comparison = "lte"
)

// RiskThreshold turns a raw next-day score into a binary risk label
type RiskThreshold struct {
	Target     Target     `json:"target"`
	Comparison Comparison `json:"comparison"`
	Value      float64    `json:"value"`
}

// Positive reports whether a raw score crosses the threshold
func (t RiskThreshold) Positive(raw float64) bool {
	if t.Comparison == AtMost {
		return raw <= t.Value
	}
	return raw >= t.Value
}

// RiskThresholds is the label table used when shifting targets forward one day.
// gut and skin are symptom severities (0-10), mood and stress are daily log scores (1-10).
var RiskThresholds = map[Target]RiskThreshold{
	TargetGut:    {Target: TargetGut, Comparison: AtLeast, Value: 5},
	TargetSkin:   {Target: TargetSkin, Comparison: AtLeast, Value: 5},
	TargetMood:   {Target: TargetMood, Comparison: AtMost, Value: 3},
	TargetStress: {Target: TargetStress, Comparison: AtLeast, Value: 8},
}

// LabelKey is the label column name for the target
func (t Target) LabelKey() string {
	return fmt.Sprintf("y_%s_next", t)
}

// Valid reports whether t is one of AllTargets
func (t Target) Valid() bool {
	for _, known := range AllTargets {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTargets validates and de-duplicates target names. An empty input means all targets.
func ParseTargets(names []string) ([]Target, error) {
	if len(names) == 0 {
		return append([]Target(nil), AllTargets...), nil
	}

	seen := make(map[Target]bool, len(names))
	targets := make([]Target, 0, len(names))
	for _, name := range names {
		target := Target(strings.ToLower(strings.TrimSpace(name)))
		if !target.Valid() {
			return nil, fmt.Errorf("unknown target %q", name)
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	return targets, nil
}
