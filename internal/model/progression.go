package model

import "time"

// Rating bounds and defaults
const (
	MinRating     = 800
	MaxRating     = 2400
	DefaultRating = 1200

	// DefaultRatingHistoryDays is how long rating history entries are retained
	DefaultRatingHistoryDays = 30

	// TrendThreshold is the signed delta beyond which a rating is improving or declining
	TrendThreshold = 10
)

// Trend classifies the direction of a rating between recomputations
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// ClassifyTrend maps a signed delta onto a trend using TrendThreshold
func ClassifyTrend(delta float64) Trend {
	switch {
	case delta > TrendThreshold:
		return TrendImproving
	case delta < -TrendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// RatingHistoryEntry records a single rating change
type RatingHistoryEntry struct {
	Date   time.Time `json:"date"`
	Rating int       `json:"rating"`
	Delta  int       `json:"delta"`
	Cause  string    `json:"cause"`
}

// DimensionProgress holds level, XP and skill rating of one dimension
type DimensionProgress struct {
	Dimension      Dimension            `json:"dimension"`
	Level          int                  `json:"level"`
	XP             int64                `json:"xp"`
	TotalXP        int64                `json:"total_xp"`
	Rating         int                  `json:"rating"`
	RatingHistory  []RatingHistoryEntry `json:"rating_history"`
	LastActiveDate *time.Time           `json:"last_active_date,omitempty"`
}

// NewDimensionProgress returns the default progress for a fresh dimension
func NewDimensionProgress(d Dimension) *DimensionProgress {
	return &DimensionProgress{
		Dimension: d,
		Level:     1,
		Rating:    DefaultRating,
	}
}

// ProgressionState is the single persisted progression record of a user
type ProgressionState struct {
	UserID             string                           `json:"user_id"`
	PermanentIndex     int                              `json:"permanent_index"`
	TotalXP            int64                            `json:"total_xp"`
	OverallRating      int                              `json:"overall_rating"`
	OverallRatingTrend Trend                            `json:"overall_rating_trend"`
	Dimensions         map[Dimension]*DimensionProgress `json:"dimensions"`
	Streaks            map[StreakType]*StreakRecord     `json:"streaks"`
	LifetimeActivities int64                            `json:"lifetime_activities"`
	LifetimeBadges     int                              `json:"lifetime_badges"`
	LastXPAt           *time.Time                       `json:"last_xp_at,omitempty"`
	LastLevelUpAt      *time.Time                       `json:"last_level_up_at,omitempty"`
	LastBadgeUnlockAt  *time.Time                       `json:"last_badge_unlock_at,omitempty"`
	CreatedOn          time.Time                        `json:"created_on"`
	UpdatedOn          time.Time                        `json:"updated_on"`

	// RewardedBadges maps badge id to when its tier reward was granted
	RewardedBadges map[string]time.Time `json:"rewarded_badges,omitempty"`

	// Version increases with every mutation; stores reject older writes
	Version int64 `json:"version"`
}

// NewProgressionState returns the default state created at first use
func NewProgressionState(userID string, now time.Time) *ProgressionState {
	s := &ProgressionState{
		UserID:             userID,
		PermanentIndex:     1,
		OverallRating:      DefaultRating,
		OverallRatingTrend: TrendStable,
		Dimensions:         make(map[Dimension]*DimensionProgress, len(AllDimensions)),
		Streaks:            make(map[StreakType]*StreakRecord),
		CreatedOn:          now,
		UpdatedOn:          now,
	}
	for _, d := range AllDimensions {
		s.Dimensions[d] = NewDimensionProgress(d)
	}
	return s
}

// Dimension returns the progress for d, creating a default entry if missing
func (s *ProgressionState) Dimension(d Dimension) *DimensionProgress {
	if s.Dimensions == nil {
		s.Dimensions = make(map[Dimension]*DimensionProgress, len(AllDimensions))
	}
	p, ok := s.Dimensions[d]
	if !ok || p == nil {
		p = NewDimensionProgress(d)
		s.Dimensions[d] = p
	}
	return p
}

// Clone returns a deep copy of the state
func (s *ProgressionState) Clone() *ProgressionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Dimensions = make(map[Dimension]*DimensionProgress, len(s.Dimensions))
	for d, p := range s.Dimensions {
		if p == nil {
			continue
		}
		cp := *p
		cp.RatingHistory = append([]RatingHistoryEntry(nil), p.RatingHistory...)
		cp.LastActiveDate = cloneTime(p.LastActiveDate)
		c.Dimensions[d] = &cp
	}
	c.Streaks = make(map[StreakType]*StreakRecord, len(s.Streaks))
	for t, r := range s.Streaks {
		if r == nil {
			continue
		}
		cr := *r
		cr.LastActivityDate = cloneTime(r.LastActivityDate)
		cr.FrozenThrough = cloneTime(r.FrozenThrough)
		c.Streaks[t] = &cr
	}
	c.LastXPAt = cloneTime(s.LastXPAt)
	c.LastLevelUpAt = cloneTime(s.LastLevelUpAt)
	c.LastBadgeUnlockAt = cloneTime(s.LastBadgeUnlockAt)
	if s.RewardedBadges != nil {
		c.RewardedBadges = make(map[string]time.Time, len(s.RewardedBadges))
		for id, at := range s.RewardedBadges {
			c.RewardedBadges[id] = at
		}
	}
	return &c
}

// BadgeRewarded reports whether the tier reward of badge id was already granted
func (s *ProgressionState) BadgeRewarded(id string) bool {
	_, ok := s.RewardedBadges[id]
	return ok
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
