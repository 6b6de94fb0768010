package model

import "time"

// JobName identifies one job of the daily pipeline
type JobName string

const (
	JobStreakCheck            JobName = "streak_check"
	JobRatingRegression       JobName = "rating_regression"
	JobDimensionSnapshot      JobName = "dimension_snapshot"
	JobBadgeCheck             JobName = "badge_check"
	JobLevelRecalculation     JobName = "level_recalculation"
	JobAnalyticsAggregation   JobName = "analytics_aggregation"
	JobSemanticExtraction     JobName = "semantic_extraction"
	JobCorrelationComputation JobName = "correlation_computation"
	JobCacheCleanup           JobName = "cache_cleanup"
)

// PipelineOrder is the strict order of the daily pipeline
var PipelineOrder = []JobName{
	JobStreakCheck,
	JobRatingRegression,
	JobDimensionSnapshot,
	JobBadgeCheck,
	JobLevelRecalculation,
	JobAnalyticsAggregation,
	JobSemanticExtraction,
	JobCorrelationComputation,
	JobCacheCleanup,
}

// CronJobResult is the outcome of one job within a run
type CronJobResult struct {
	Job            JobName       `json:"job"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	ItemsProcessed int           `json:"items_processed"`
	Changes        []Change      `json:"changes,omitempty"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
}

// DailyCronReport is the ephemeral record of one maintenance run
type DailyCronReport struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Date         string          `json:"date"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Jobs         []CronJobResult `json:"jobs"`
	AllSucceeded bool            `json:"all_succeeded"`
	Skipped      bool            `json:"skipped"`
}

// IsEmpty reports whether the report did no work (already ran for its date)
func (r *DailyCronReport) IsEmpty() bool {
	return r == nil || len(r.Jobs) == 0
}

// Changes flattens the changes of every job in pipeline order
func (r *DailyCronReport) Changes() []Change {
	if r == nil {
		return nil
	}
	var out []Change
	for _, j := range r.Jobs {
		out = append(out, j.Changes...)
	}
	return out
}

// RunHistoryEntry is the durable ledger row marking a date's official run
type RunHistoryEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Date         string    `json:"date"`
	ReportID     string    `json:"report_id"`
	AllSucceeded bool      `json:"all_succeeded"`
	JobCount     int       `json:"job_count"`
	ChangeCount  int       `json:"change_count"`
	CompletedAt  time.Time `json:"completed_at"`
}
