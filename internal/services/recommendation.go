package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/healthcast-go/internal/models"
)

// RecommendationRule maps a high predicted risk for one target to advice
type RecommendationRule struct {
	Target models.Target
	Above  float64
	Advice string
}

// DefaultRecommendationRules is the advice table used for daily predictions
var DefaultRecommendationRules = []RecommendationRule{
	{Target: models.TargetGut, Above: 0.7, Advice: "Consider avoiding spicy foods and caffeine today"},
	{Target: models.TargetSkin, Above: 0.7, Advice: "Use gentle skincare products and avoid harsh chemicals"},
	{Target: models.TargetMood, Above: 0.7, Advice: "Try relaxation techniques like meditation or deep breathing"},
	{Target: models.TargetStress, Above: 0.7, Advice: "Take breaks throughout the day and practice stress management"},
}

// DefaultLowRiskBelow is the probability under which a target earns positive reinforcement
const DefaultLowRiskBelow = 0.3

// Recommender turns predicted risks into short advice lines
type Recommender struct {
	rules        []RecommendationRule
	lowRiskBelow float64
}

// NewRecommender creates a recommender with the default rules
func NewRecommender() *Recommender {
	return NewRecommenderWithRules(DefaultRecommendationRules, DefaultLowRiskBelow)
}

// NewRecommenderWithRules creates a recommender with a custom rule table
func NewRecommenderWithRules(rules []RecommendationRule, lowRiskBelow float64) *Recommender {
	return &Recommender{
		rules:        rules,
		lowRiskBelow: lowRiskBelow,
	}
}

// Recommend returns advice for every rule whose target risk exceeds its
// threshold, followed by one reinforcement line listing the low-risk targets.
// Targets are visited in models.AllTargets order so output is stable.
func (r *Recommender) Recommend(predictions map[models.Target]float64) []string {
	out := make([]string, 0)
	for _, target := range models.AllTargets {
		risk, ok := predictions[target]
		if !ok {
			continue
		}
		for _, rule := range r.rules {
			if rule.Target == target && risk > rule.Above {
				out = append(out, rule.Advice)
			}
		}
	}

	var low []string
	for _, target := range models.AllTargets {
		if risk, ok := predictions[target]; ok && risk < r.lowRiskBelow {
			low = append(low, string(target))
		}
	}
	if len(low) > 0 {
		out = append(out, fmt.Sprintf("Great job! Your %s risk is low today", strings.Join(low, ", ")))
	}
	return out
}

// TargetLabel renders a target for human-facing text, e.g. "Gut".
// A Caser is stateful, so each call gets its own.
func TargetLabel(target models.Target) string {
	return cases.Title(language.English).String(string(target))
}
