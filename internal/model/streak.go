package model

import "time"

// StreakType identifies a kind of qualifying daily activity
type StreakType string

const (
	StreakDeepWork         StreakType = "deep_work"
	StreakWriting          StreakType = "writing"
	StreakSleepConsistency StreakType = "sleep_consistency"
	StreakWorkout          StreakType = "workout"
	StreakJournal          StreakType = "journal"
	StreakLearning         StreakType = "learning"
)

// AllStreakTypes lists the tracked streak types
var AllStreakTypes = []StreakType{
	StreakDeepWork,
	StreakWriting,
	StreakSleepConsistency,
	StreakWorkout,
	StreakJournal,
	StreakLearning,
}

// Valid reports whether t is a tracked streak type
func (t StreakType) Valid() bool {
	for _, known := range AllStreakTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MaxFreezeTokens caps how many streak freezes can be banked per streak
const MaxFreezeTokens = 3

// StreakRecord is the consecutive-day counter for one streak type.
// LongestCount >= CurrentCount always holds; an inactive streak has CurrentCount 0.
type StreakRecord struct {
	Type             StreakType `json:"type"`
	CurrentCount     int        `json:"current_count"`
	LongestCount     int        `json:"longest_count"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
	IsActive         bool       `json:"is_active"`
	FreezeTokens     int        `json:"freeze_tokens"`
	FrozenThrough    *time.Time `json:"frozen_through,omitempty"`
}
