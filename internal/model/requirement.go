package model

import (
	"fmt"
	"strings"
)

// RequirementKind tags a badge requirement variant
type RequirementKind string

const (
	RequirementCount          RequirementKind = "count"
	RequirementStreak         RequirementKind = "streak"
	RequirementRating         RequirementKind = "rating"
	RequirementLevel          RequirementKind = "level"
	RequirementQuality        RequirementKind = "quality"
	RequirementTime           RequirementKind = "time"
	RequirementMultiDimension RequirementKind = "multi_dimension"
	RequirementCompound       RequirementKind = "compound"
)

// Requirement is a typed badge requirement. The set of implementations is closed.
type Requirement interface {
	Kind() RequirementKind
	Describe() string
	sealed()
}

// CountRequirement counts activities, optionally filtered by type and dimension
type CountRequirement struct {
	ActivityType string     `json:"activity_type,omitempty"`
	Dimension    *Dimension `json:"dimension,omitempty"`
	Target       int        `json:"target"`
}

// StreakRequirement reads a streak counter. An empty StreakType means the weakest
// (minimum) current streak across all tracked streaks.
type StreakRequirement struct {
	StreakType StreakType `json:"streak_type,omitempty"`
	Longest    bool       `json:"longest"`
	Target     int        `json:"target"`
}

// RatingRequirement reads a dimension rating, or the mean rating when unscoped
type RatingRequirement struct {
	Dimension *Dimension `json:"dimension,omitempty"`
	Target    int        `json:"target"`
}

// LevelRequirement reads a dimension level, or the permanent index when unscoped
type LevelRequirement struct {
	Dimension *Dimension `json:"dimension,omitempty"`
	Target    int        `json:"target"`
}

// QualityRequirement reads an aggregate quality or consistency metric
type QualityRequirement struct {
	Metric string  `json:"metric"`
	Target float64 `json:"target"`
}

// TimeRequirement reads an aggregate time total in minutes
type TimeRequirement struct {
	Metric string  `json:"metric"`
	Target float64 `json:"target"`
}

// MultiDimensionCriterion selects what a dimension must reach to count
type MultiDimensionCriterion string

const (
	CriterionLevel  MultiDimensionCriterion = "level"
	CriterionRating MultiDimensionCriterion = "rating"
	CriterionActive MultiDimensionCriterion = "active"
)

// MultiDimensionRequirement counts dimensions meeting MinValue under Criterion
type MultiDimensionRequirement struct {
	Criterion     MultiDimensionCriterion `json:"criterion"`
	MinValue      float64                 `json:"min_value"`
	MinDimensions int                     `json:"min_dimensions"`
}

// CompoundRequirement nests requirements. It is met when every part is met,
// or when any part is met if Any is set.
type CompoundRequirement struct {
	Parts []Requirement `json:"parts"`
	Any   bool          `json:"any,omitempty"`
}

func (*CountRequirement) Kind() RequirementKind { return RequirementCount }
func (*StreakRequirement) Kind() RequirementKind { return RequirementStreak }
func (*RatingRequirement) Kind() RequirementKind { return RequirementRating }
func (*LevelRequirement) Kind() RequirementKind { return RequirementLevel }
func (*QualityRequirement) Kind() RequirementKind { return RequirementQuality }
func (*TimeRequirement) Kind() RequirementKind { return RequirementTime }
func (*MultiDimensionRequirement) Kind() RequirementKind { return RequirementMultiDimension }
func (*CompoundRequirement) Kind() RequirementKind { return RequirementCompound }

func (*CountRequirement) sealed() {}
func (*StreakRequirement) sealed() {}
func (*RatingRequirement) sealed() {}
func (*LevelRequirement) sealed() {}
func (*QualityRequirement) sealed() {}
func (*TimeRequirement) sealed() {}
func (*MultiDimensionRequirement) sealed() {}
func (*CompoundRequirement) sealed() {}

func (r *CountRequirement) Describe() string {
	subject := "activities"
	if r.ActivityType != "" {
		subject = r.ActivityType + " activities"
	}
	if r.Dimension != nil {
		subject = fmt.Sprintf("%s in %s", subject, *r.Dimension)
	}
	return fmt.Sprintf("Log %d %s", r.Target, subject)
}

func (r *StreakRequirement) Describe() string {
	kind := "current"
	if r.Longest {
		kind = "longest"
	}
	if r.StreakType == "" {
		return fmt.Sprintf("Reach a %s streak of %d days on every tracked streak", kind, r.Target)
	}
	return fmt.Sprintf("Reach a %s %s streak of %d days", kind, r.StreakType, r.Target)
}

func (r *RatingRequirement) Describe() string {
	if r.Dimension == nil {
		return fmt.Sprintf("Reach an average rating of %d", r.Target)
	}
	return fmt.Sprintf("Reach a %s rating of %d", *r.Dimension, r.Target)
}

func (r *LevelRequirement) Describe() string {
	if r.Dimension == nil {
		return fmt.Sprintf("Reach permanent index %d", r.Target)
	}
	return fmt.Sprintf("Reach %s level %d", *r.Dimension, r.Target)
}

func (r *QualityRequirement) Describe() string {
	return fmt.Sprintf("Reach %s of %.2f", r.Metric, r.Target)
}

func (r *TimeRequirement) Describe() string {
	return fmt.Sprintf("Accumulate %.0f minutes of %s", r.Target, r.Metric)
}

func (r *MultiDimensionRequirement) Describe() string {
	if r.Criterion == CriterionActive {
		return fmt.Sprintf("Be active in %d dimensions", r.MinDimensions)
	}
	return fmt.Sprintf("Reach %s %.0f in %d dimensions", r.Criterion, r.MinValue, r.MinDimensions)
}

func (r *CompoundRequirement) Describe() string {
	parts := make([]string, 0, len(r.Parts))
	for _, part := range r.Parts {
		parts = append(parts, part.Describe())
	}
	sep := " and "
	if r.Any {
		sep = " or "
	}
	return "(" + strings.Join(parts, sep) + ")"
}
