package model

import "time"

// EvaluationContext is a snapshot of aggregate user statistics used for badge evaluation
type EvaluationContext struct {
	UserID string    `json:"user_id"`
	AsOf   time.Time `json:"as_of"`

	// Activity counts by activity type and by dimension
	ActivityCounts          map[string]int    `json:"activity_counts"`
	DimensionActivityCounts map[Dimension]int `json:"dimension_activity_counts"`

	CurrentStreaks map[StreakType]int `json:"current_streaks"`
	LongestStreaks map[StreakType]int `json:"longest_streaks"`

	Ratings        map[Dimension]int `json:"ratings"`
	Levels         map[Dimension]int `json:"levels"`
	PermanentIndex int               `json:"permanent_index"`
	OverallRating  int               `json:"overall_rating"`

	// TimeTotals holds minutes per time metric (e.g. deep_work_minutes)
	TimeTotals map[string]float64 `json:"time_totals"`
	// QualityMetrics holds quality/consistency metrics (e.g. average_quality, consistency)
	QualityMetrics map[string]float64 `json:"quality_metrics"`

	EarnedBadges map[string]time.Time `json:"earned_badges"`
}

// NewEvaluationContext returns an empty context with initialized maps
func NewEvaluationContext(userID string, asOf time.Time) *EvaluationContext {
	return &EvaluationContext{
		UserID:                  userID,
		AsOf:                    asOf,
		ActivityCounts:          make(map[string]int),
		DimensionActivityCounts: make(map[Dimension]int),
		CurrentStreaks:          make(map[StreakType]int),
		LongestStreaks:          make(map[StreakType]int),
		Ratings:                 make(map[Dimension]int),
		Levels:                  make(map[Dimension]int),
		TimeTotals:              make(map[string]float64),
		QualityMetrics:          make(map[string]float64),
		EarnedBadges:            make(map[string]time.Time),
	}
}

// HasBadge reports whether the badge is already recorded as earned
func (c *EvaluationContext) HasBadge(id string) bool {
	_, ok := c.EarnedBadges[id]
	return ok
}
