package model

import "time"

// ChangeType identifies a typed change record emitted by the engine
type ChangeType string

const (
	ChangeXPAwarded          ChangeType = "xp_awarded"
	ChangeLevelChanged       ChangeType = "level_changed"
	ChangePermanentIndexUp   ChangeType = "permanent_index_up"
	ChangeRatingChanged      ChangeType = "rating_changed"
	ChangeOverallRating      ChangeType = "overall_rating_changed"
	ChangeStreakExtended     ChangeType = "streak_extended"
	ChangeStreakBroken       ChangeType = "streak_broken"
	ChangeStreakFrozen       ChangeType = "streak_frozen"
	ChangeBadgeUnlocked      ChangeType = "badge_unlocked"
	ChangeRatingRegressed    ChangeType = "rating_regressed"
	ChangeLevelCorrected     ChangeType = "level_corrected"
	ChangeSnapshotTaken      ChangeType = "snapshot_taken"
	ChangeInsightDiscovered  ChangeType = "insight_discovered"
	ChangeInsightRevalidated ChangeType = "insight_revalidated"
	ChangeWellnessIndex      ChangeType = "wellness_index_changed"
)

// Change is a typed record of one state change, surfaced to notification/UI/analytics collaborators
type Change struct {
	Type      ChangeType `json:"type"`
	UserID    string     `json:"user_id"`
	Dimension *Dimension `json:"dimension,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Before    float64    `json:"before"`
	After     float64    `json:"after"`
	Message   string     `json:"message,omitempty"`
	At        time.Time  `json:"at"`
}
