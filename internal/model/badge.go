package model

import (
	"fmt"
	"time"
)

// BadgeTier is one of six ordered badge tiers
type BadgeTier string

const (
	TierBronze    BadgeTier = "bronze"
	TierSilver    BadgeTier = "silver"
	TierGold      BadgeTier = "gold"
	TierPlatinum  BadgeTier = "platinum"
	TierDiamond   BadgeTier = "diamond"
	TierLegendary BadgeTier = "legendary"
)

// TierReward is the fixed reward granted when a badge of a tier is earned
type TierReward struct {
	Rank        int   `json:"rank"`
	XP          int64 `json:"xp"`
	BonusRating int   `json:"bonus_rating"`
}

// TierRewards lists the reward of each tier in ascending order
var TierRewards = map[BadgeTier]TierReward{
	TierBronze:    {Rank: 1, XP: 50, BonusRating: 5},
	TierSilver:    {Rank: 2, XP: 100, BonusRating: 10},
	TierGold:      {Rank: 3, XP: 250, BonusRating: 20},
	TierPlatinum:  {Rank: 4, XP: 500, BonusRating: 35},
	TierDiamond:   {Rank: 5, XP: 1000, BonusRating: 50},
	TierLegendary: {Rank: 6, XP: 2500, BonusRating: 100},
}

// Reward returns the tier's reward, or an error for an unknown tier
func (t BadgeTier) Reward() (TierReward, error) {
	r, ok := TierRewards[t]
	if !ok {
		return TierReward{}, fmt.Errorf("%w: unknown badge tier %q", ErrDataIntegrity, t)
	}
	return r, nil
}

// BadgeDefinition is a static, read-only catalog entry
type BadgeDefinition struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Icon                 string        `json:"icon,omitempty"`
	Tier                 BadgeTier     `json:"tier"`
	Category             string        `json:"category"`
	Dimension            *Dimension    `json:"dimension,omitempty"`
	Requirements         []Requirement `json:"-"`
	RequireAll           bool          `json:"require_all"`
	PrerequisiteBadgeIDs []string      `json:"prerequisite_badge_ids,omitempty"`
	UnlocksAt            *time.Time    `json:"unlocks_at,omitempty"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty"`
	IsSecret             bool          `json:"is_secret"`
}

// BadgeUnlock is the durable record of a badge transitioning to Complete
type BadgeUnlock struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	BadgeID    string    `json:"badge_id"`
	Tier       BadgeTier `json:"tier"`
	XPAwarded  int64     `json:"xp_awarded"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// BadgeState is the per-user lifecycle state of a badge
type BadgeState string

const (
	BadgeLocked   BadgeState = "locked"
	BadgeEligible BadgeState = "eligible"
	BadgeComplete BadgeState = "complete"
)

// RequirementProgress is the evaluated progress of one requirement
type RequirementProgress struct {
	Kind        RequirementKind `json:"kind"`
	Current     float64         `json:"current"`
	Target      float64         `json:"target"`
	Description string          `json:"description"`
}

// Ratio returns current/target clamped to [0, 1]. A non-positive target is already met.
func (p RequirementProgress) Ratio() float64 {
	if p.Target <= 0 {
		return 1
	}
	r := p.Current / p.Target
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// BadgeProgress is the derived progress of a badge for a user
type BadgeProgress struct {
	BadgeID                string                `json:"badge_id"`
	Name                   string                `json:"name,omitempty"`
	Description            string                `json:"description,omitempty"`
	Tier                   BadgeTier             `json:"tier"`
	State                  BadgeState            `json:"state"`
	Requirements           []RequirementProgress `json:"requirements,omitempty"`
	Progress               float64               `json:"progress"`
	IsComplete             bool                  `json:"is_complete"`
	PrerequisitesSatisfied bool                  `json:"prerequisites_satisfied"`
	IsSecret               bool                  `json:"is_secret"`
	Earned                 bool                  `json:"earned"`
	EarnedAt               *time.Time            `json:"earned_at,omitempty"`
}
