package model

import "time"

// DimensionSnapshot is a point-in-time copy of all dimensions plus the overall index/rating
type DimensionSnapshot struct {
	ID             string                      `json:"id"`
	UserID         string                      `json:"user_id"`
	Date           string                      `json:"date"`
	PermanentIndex int                         `json:"permanent_index"`
	OverallRating  int                         `json:"overall_rating"`
	WellnessIndex  *float64                    `json:"wellness_index,omitempty"`
	Dimensions     map[Dimension]DimensionStat `json:"dimensions"`
	CreatedOn      time.Time                   `json:"created_on"`
}

// DimensionStat is the snapshotted value of one dimension
type DimensionStat struct {
	Level   int   `json:"level"`
	XP      int64 `json:"xp"`
	TotalXP int64 `json:"total_xp"`
	Rating  int   `json:"rating"`
}

// DailyAnalytics is the per-day aggregation written by the analytics job
type DailyAnalytics struct {
	UserID         string              `json:"user_id"`
	Date           string              `json:"date"`
	XPByDimension  map[Dimension]int64 `json:"xp_by_dimension"`
	ActivityCounts map[string]int      `json:"activity_counts"`
	ActiveMinutes  float64             `json:"active_minutes"`
	ActivityTotal  int                 `json:"activity_total"`
	UpdatedOn      time.Time           `json:"updated_on"`
}

// DailyMetric is one named metric value extracted for a day
type DailyMetric struct {
	UserID  string  `json:"user_id"`
	Date    string  `json:"date"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Samples int     `json:"samples"`
}

// CorrelationDirection is the sign of a correlation
type CorrelationDirection string

const (
	CorrelationPositive CorrelationDirection = "positive"
	CorrelationNegative CorrelationDirection = "negative"
)

// CorrelationInsight flags co-movement between two daily metrics. It is descriptive, not causal.
type CorrelationInsight struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	MetricA         string               `json:"metric_a"`
	MetricB         string               `json:"metric_b"`
	Coefficient     float64              `json:"coefficient"`
	Direction       CorrelationDirection `json:"direction"`
	SampleSize      int                  `json:"sample_size"`
	ValidationCount int                  `json:"validation_count"`
	FirstSeenAt     time.Time            `json:"first_seen_at"`
	LastValidatedAt time.Time            `json:"last_validated_at"`
}

// WellnessIndex is the cross-dimension headline score on a 0-100 scale
type WellnessIndex struct {
	Value      float64               `json:"value"`
	Trend      Trend                 `json:"trend"`
	Included   []Dimension           `json:"included"`
	Scores     map[Dimension]float64 `json:"scores"`
	Confidence map[Dimension]float64 `json:"confidence"`
	ComputedAt time.Time             `json:"computed_at"`
	HasValue   bool                  `json:"has_value"`
}
