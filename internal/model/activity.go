package model

import "time"

// Activity types recognized by the default activity rules and metric extraction
const (
	ActivityDeepWork     = "deep_work"
	ActivityWriting      = "writing"
	ActivitySleep        = "sleep"
	ActivityWorkout      = "workout"
	ActivityJournal      = "journal"
	ActivityTask         = "task"
	ActivityIdea         = "idea"
	ActivityReading      = "reading"
	ActivityNote         = "note"
	ActivityMeditation   = "meditation"
	ActivityContentDraft = "content_draft"
)

// Well-known keys of Activity.Metrics
const (
	MetricKeyDuration = "duration_minutes"
	MetricKeyQuality  = "quality"
	MetricKeyHours    = "hours"
	MetricKeyMood     = "mood"
	MetricKeyEnergy   = "energy"
	MetricKeyHRV      = "hrv"
	MetricKeyWords    = "words"
)

// Activity is a raw activity event ("atom") from the host's event store
type Activity struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Type       string             `json:"type"`
	Dimension  *Dimension         `json:"dimension,omitempty"`
	Title      string             `json:"title,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	CreatedOn  time.Time          `json:"created_on"`
}

// Metric returns the named metric and whether it is present
func (a *Activity) Metric(key string) (float64, bool) {
	if a == nil || a.Metrics == nil {
		return 0, false
	}
	v, ok := a.Metrics[key]
	return v, ok
}

// DurationMinutes returns the activity duration or 0
func (a *Activity) DurationMinutes() float64 {
	v, _ := a.Metric(MetricKeyDuration)
	return v
}
