package service

import (
	"math"

	"github.com/forgo/progression/internal/model"
)

// BadgeEngine evaluates badge definitions against an evaluation context.
// Per badge and user the lifecycle is Locked -> Eligible -> Complete, and
// Complete is terminal.
type BadgeEngine struct {
	catalog *BadgeCatalog
}

// NewBadgeEngine creates a new badge engine over a catalog
func NewBadgeEngine(catalog *BadgeCatalog) *BadgeEngine {
	return &BadgeEngine{catalog: catalog}
}

// Catalog returns the engine's catalog
func (e *BadgeEngine) Catalog() *BadgeCatalog {
	return e.catalog
}

// EvaluateRequirement computes the current and target value of one requirement
func EvaluateRequirement(req model.Requirement, ec *model.EvaluationContext) model.RequirementProgress {
	p := model.RequirementProgress{Kind: req.Kind(), Description: req.Describe()}

	switch r := req.(type) {
	case *model.CountRequirement:
		p.Target = float64(r.Target)
		switch {
		case r.ActivityType != "":
			p.Current = float64(ec.ActivityCounts[r.ActivityType])
		case r.Dimension != nil:
			p.Current = float64(ec.DimensionActivityCounts[*r.Dimension])
		default:
			total := 0
			for _, n := range ec.ActivityCounts {
				total += n
			}
			p.Current = float64(total)
		}

	case *model.StreakRequirement:
		p.Target = float64(r.Target)
		counts := ec.CurrentStreaks
		if r.Longest {
			counts = ec.LongestStreaks
		}
		if r.StreakType != "" {
			p.Current = float64(counts[r.StreakType])
		} else {
			p.Current = float64(weakestStreak(counts))
		}

	case *model.RatingRequirement:
		p.Target = float64(r.Target)
		if r.Dimension != nil {
			p.Current = float64(ratingOf(ec, *r.Dimension))
		} else {
			p.Current = meanRating(ec)
		}

	case *model.LevelRequirement:
		p.Target = float64(r.Target)
		if r.Dimension != nil {
			p.Current = float64(levelOf(ec, *r.Dimension))
		} else {
			p.Current = float64(ec.PermanentIndex)
		}

	case *model.QualityRequirement:
		p.Target = r.Target
		p.Current = ec.QualityMetrics[r.Metric]

	case *model.TimeRequirement:
		p.Target = r.Target
		p.Current = ec.TimeTotals[r.Metric]

	case *model.MultiDimensionRequirement:
		p.Target = float64(r.MinDimensions)
		met := 0
		for _, d := range model.AllDimensions {
			var v float64
			threshold := r.MinValue
			switch r.Criterion {
			case model.CriterionLevel:
				v = float64(levelOf(ec, d))
			case model.CriterionRating:
				v = float64(ratingOf(ec, d))
			case model.CriterionActive:
				v = float64(ec.DimensionActivityCounts[d])
				threshold = math.Max(1, r.MinValue)
			}
			if v >= threshold {
				met++
			}
		}
		p.Current = float64(met)

	case *model.CompoundRequirement:
		parts := make([]model.RequirementProgress, 0, len(r.Parts))
		for _, part := range r.Parts {
			parts = append(parts, EvaluateRequirement(part, ec))
		}
		p.Target = 1
		p.Current = Combine(parts, !r.Any)
	}
	return p
}

// weakestStreak returns the minimum count across tracked streaks
func weakestStreak(counts map[model.StreakType]int) int {
	first := true
	weakest := 0
	for _, n := range counts {
		if first || n < weakest {
			weakest = n
			first = false
		}
	}
	return weakest
}

func ratingOf(ec *model.EvaluationContext, d model.Dimension) int {
	if r, ok := ec.Ratings[d]; ok {
		return r
	}
	return model.DefaultRating
}

func levelOf(ec *model.EvaluationContext, d model.Dimension) int {
	if l, ok := ec.Levels[d]; ok {
		return l
	}
	return 1
}

// meanRating averages the six dimension ratings
func meanRating(ec *model.EvaluationContext) float64 {
	sum := 0
	for _, d := range model.AllDimensions {
		sum += ratingOf(ec, d)
	}
	return float64(sum) / float64(len(model.AllDimensions))
}

// Combine folds per-requirement progress into badge progress: the weakest
// requirement under AND, the strongest under OR
func Combine(progress []model.RequirementProgress, requireAll bool) float64 {
	if len(progress) == 0 {
		return 0
	}
	combined := progress[0].Ratio()
	for _, p := range progress[1:] {
		r := p.Ratio()
		if requireAll {
			combined = math.Min(combined, r)
		} else {
			combined = math.Max(combined, r)
		}
	}
	return combined
}

// PrerequisitesSatisfied reports whether every prerequisite badge is earned
func PrerequisitesSatisfied(def *model.BadgeDefinition, ec *model.EvaluationContext) bool {
	for _, id := range def.PrerequisiteBadgeIDs {
		if !ec.HasBadge(id) {
			return false
		}
	}
	return true
}

// withinWindow reports whether AsOf lies in [UnlocksAt, ExpiresAt)
func withinWindow(def *model.BadgeDefinition, ec *model.EvaluationContext) bool {
	if def.UnlocksAt != nil && ec.AsOf.Before(*def.UnlocksAt) {
		return false
	}
	if def.ExpiresAt != nil && !ec.AsOf.Before(*def.ExpiresAt) {
		return false
	}
	return true
}

// State returns the lifecycle state of a badge. A recorded badge is Complete
// regardless of its current requirements.
func (e *BadgeEngine) State(def *model.BadgeDefinition, ec *model.EvaluationContext) model.BadgeState {
	if ec.HasBadge(def.ID) {
		return model.BadgeComplete
	}
	if !PrerequisitesSatisfied(def, ec) || !withinWindow(def, ec) {
		return model.BadgeLocked
	}
	return model.BadgeEligible
}

// Evaluate computes the progress of one badge. IsComplete on an Eligible
// badge means its requirements are met but the unlock is not yet recorded.
func (e *BadgeEngine) Evaluate(def *model.BadgeDefinition, ec *model.EvaluationContext) model.BadgeProgress {
	bp := model.BadgeProgress{
		BadgeID:                def.ID,
		Name:                   def.Name,
		Description:            def.Description,
		Tier:                   def.Tier,
		State:                  e.State(def, ec),
		PrerequisitesSatisfied: PrerequisitesSatisfied(def, ec),
		IsSecret:               def.IsSecret,
	}
	for _, req := range def.Requirements {
		bp.Requirements = append(bp.Requirements, EvaluateRequirement(req, ec))
	}

	if earnedAt, ok := ec.EarnedBadges[def.ID]; ok {
		at := earnedAt
		bp.Earned = true
		bp.EarnedAt = &at
		bp.IsComplete = true
		bp.IsSecret = false
		bp.Progress = 1
		return bp
	}

	bp.Progress = Combine(bp.Requirements, def.RequireAll)
	bp.IsComplete = bp.Progress >= 1
	return bp
}

// Progress lists badge progress in catalog order. Unearned secret badges are
// left out unless includeSecret is set.
func (e *BadgeEngine) Progress(ec *model.EvaluationContext, includeSecret bool) []model.BadgeProgress {
	out := make([]model.BadgeProgress, 0, e.catalog.Len())
	for _, def := range e.catalog.All() {
		bp := e.Evaluate(def, ec)
		if bp.IsSecret && !includeSecret {
			continue
		}
		out = append(out, bp)
	}
	return out
}

// CheckForNewlyEarned returns badges that are Eligible, not yet recorded and
// now satisfy their requirements. Badges whose prerequisites are earned in
// the same pass are picked up on the next evaluation.
func (e *BadgeEngine) CheckForNewlyEarned(ec *model.EvaluationContext) []*model.BadgeDefinition {
	var earned []*model.BadgeDefinition
	for _, def := range e.catalog.All() {
		if e.State(def, ec) != model.BadgeEligible {
			continue
		}
		var progress []model.RequirementProgress
		for _, req := range def.Requirements {
			progress = append(progress, EvaluateRequirement(req, ec))
		}
		if Combine(progress, def.RequireAll) >= 1 {
			earned = append(earned, def)
		}
	}
	return earned
}
