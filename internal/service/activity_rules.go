package service

import (
	"math"

	"github.com/forgo/progression/internal/model"
)

// ActivityRule maps an activity type onto its dimension, XP and streak
type ActivityRule struct {
	Type        string           `yaml:"type"`
	Dimension   model.Dimension  `yaml:"dimension"`
	BaseXP      int64            `yaml:"base_xp"`
	XPPerMinute float64          `yaml:"xp_per_minute"`
	MaxXP       int64            `yaml:"max_xp"`
	StreakType  model.StreakType `yaml:"streak_type"`
}

// ActivityRules indexes rules by activity type
type ActivityRules map[string]ActivityRule

// DefaultActivityXP is awarded for an activity without a rule but with an explicit dimension
const DefaultActivityXP = 10

// Rating nudges applied when an activity is recorded
const (
	// ActivityRatingBase is the raw rating change for showing up without a quality score
	ActivityRatingBase = 3

	// ActivityRatingPerQuality scales quality (1-5, neutral 3) into a raw rating change
	ActivityRatingPerQuality = 5.0
)

// DefaultActivityRules returns the built-in activity rule table
func DefaultActivityRules() ActivityRules {
	rules := []ActivityRule{
		{Type: model.ActivityDeepWork, Dimension: model.DimensionCognitive, BaseXP: 20, XPPerMinute: 1, MaxXP: 200, StreakType: model.StreakDeepWork},
		{Type: model.ActivityWriting, Dimension: model.DimensionCreative, BaseXP: 20, XPPerMinute: 0.8, MaxXP: 160, StreakType: model.StreakWriting},
		{Type: model.ActivityContentDraft, Dimension: model.DimensionCreative, BaseXP: 30, MaxXP: 30, StreakType: model.StreakWriting},
		{Type: model.ActivityIdea, Dimension: model.DimensionCreative, BaseXP: 10, MaxXP: 10},
		{Type: model.ActivitySleep, Dimension: model.DimensionPhysiological, BaseXP: 25, MaxXP: 25, StreakType: model.StreakSleepConsistency},
		{Type: model.ActivityWorkout, Dimension: model.DimensionPhysiological, BaseXP: 20, XPPerMinute: 1, MaxXP: 150, StreakType: model.StreakWorkout},
		{Type: model.ActivityTask, Dimension: model.DimensionBehavioral, BaseXP: 10, MaxXP: 10},
		{Type: model.ActivityReading, Dimension: model.DimensionKnowledge, BaseXP: 15, XPPerMinute: 0.5, MaxXP: 100, StreakType: model.StreakLearning},
		{Type: model.ActivityNote, Dimension: model.DimensionKnowledge, BaseXP: 10, MaxXP: 10, StreakType: model.StreakLearning},
		{Type: model.ActivityJournal, Dimension: model.DimensionReflection, BaseXP: 20, MaxXP: 20, StreakType: model.StreakJournal},
		{Type: model.ActivityMeditation, Dimension: model.DimensionReflection, BaseXP: 10, XPPerMinute: 1, MaxXP: 60},
	}
	out := make(ActivityRules, len(rules))
	for _, r := range rules {
		out[r.Type] = r
	}
	return out
}

// BaseXPFor returns the pre-multiplier XP an activity earns under rule
func (r ActivityRule) BaseXPFor(a *model.Activity) int64 {
	xp := float64(r.BaseXP) + r.XPPerMinute*a.DurationMinutes()
	if r.MaxXP > 0 && xp > float64(r.MaxXP) {
		xp = float64(r.MaxXP)
	}
	if xp < 0 {
		return 0
	}
	return int64(math.Round(xp))
}

// RatingChangeFor returns the raw rating change an activity earns
func RatingChangeFor(a *model.Activity) int {
	q, ok := a.Metric(model.MetricKeyQuality)
	if !ok {
		return ActivityRatingBase
	}
	return int(math.Round((q - 3) * ActivityRatingPerQuality))
}

// Resolve returns the rule for an activity. An explicit activity dimension
// overrides the rule's; an unknown type needs an explicit dimension.
func (rules ActivityRules) Resolve(a *model.Activity) (ActivityRule, error) {
	rule, ok := rules[a.Type]
	if !ok {
		if a.Dimension == nil {
			return ActivityRule{}, ErrUnknownActivityType
		}
		rule = ActivityRule{Type: a.Type, BaseXP: DefaultActivityXP, MaxXP: DefaultActivityXP}
	}
	if a.Dimension != nil {
		rule.Dimension = *a.Dimension
	}
	if !rule.Dimension.Valid() {
		return ActivityRule{}, model.ErrUnknownDimension
	}
	return rule, nil
}
