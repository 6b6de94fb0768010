package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/forgo/progression/internal/model"
)

// Aggregate metric keys produced for badge evaluation
const (
	MetricTotalMinutes      = "total_minutes"
	MetricAverageQuality    = "average_quality"
	MetricAverageSleepHours = "average_sleep_hours"
	MetricConsistency30d    = "consistency_30d"

	consistencyWindowDays = 30
)

// EvaluationContextBuilder assembles the statistics badges are evaluated against
type EvaluationContextBuilder interface {
	Build(ctx context.Context, userID string, asOf time.Time) (*model.EvaluationContext, error)
}

// BadgeUnlockRepository defines the interface for durable badge unlocks
type BadgeUnlockRepository interface {
	ListUnlocks(ctx context.Context, userID string) ([]*model.BadgeUnlock, error)
	// RecordUnlock stores the unlock once per (user, badge) and reports whether it was new
	RecordUnlock(ctx context.Context, unlock *model.BadgeUnlock) (bool, error)
}

// ContextBuilder builds evaluation contexts from progression state, the
// activity store and recorded unlocks
type ContextBuilder struct {
	states     StateReader
	activities ActivityRepository
	unlocks    BadgeUnlockRepository
	loc        *time.Location
	logger     *zap.Logger
}

// ContextBuilderConfig holds configuration for the context builder
type ContextBuilderConfig struct {
	States     StateReader
	Activities ActivityRepository
	Unlocks    BadgeUnlockRepository
	Location   *time.Location
	Logger     *zap.Logger
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(cfg ContextBuilderConfig) *ContextBuilder {
	b := &ContextBuilder{
		states:     cfg.States,
		activities: cfg.Activities,
		unlocks:    cfg.Unlocks,
		loc:        cfg.Location,
		logger:     cfg.Logger,
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// Build assembles the context as of asOf. Activities at or after asOf are ignored.
func (b *ContextBuilder) Build(ctx context.Context, userID string, asOf time.Time) (*model.EvaluationContext, error) {
	st, err := b.states.State(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	activities, err := b.activities.ListActivities(ctx, userID, time.Time{}, asOf)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	unlocks, err := b.unlocks.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list badge unlocks: %w", err)
	}

	ec := model.NewEvaluationContext(userID, asOf)
	FillFromState(ec, st)
	skipped := AccumulateActivities(ec, activities, b.loc)
	if skipped > 0 {
		b.logger.Warn("skipped malformed activities",
			zap.String("user_id", userID),
			zap.Int("count", skipped))
	}
	for _, u := range unlocks {
		if u == nil || u.BadgeID == "" {
			continue
		}
		ec.EarnedBadges[u.BadgeID] = u.UnlockedAt
	}
	return ec, nil
}

// FillFromState copies ratings, levels and streaks into the context
func FillFromState(ec *model.EvaluationContext, st *model.ProgressionState) {
	for _, d := range model.AllDimensions {
		p := st.Dimension(d)
		ec.Ratings[d] = p.Rating
		ec.Levels[d] = p.Level
	}
	ec.PermanentIndex = st.PermanentIndex
	ec.OverallRating = st.OverallRating
	for typ, rec := range st.Streaks {
		if rec == nil {
			continue
		}
		ec.CurrentStreaks[typ] = rec.CurrentCount
		ec.LongestStreaks[typ] = rec.LongestCount
	}
}

// AccumulateActivities folds activities into counts, time totals and quality
// metrics. Activities missing a type are dropped; it returns how many.
func AccumulateActivities(ec *model.EvaluationContext, activities []*model.Activity, loc *time.Location) int {
	var (
		skipped      int
		qualitySum   float64
		qualityN     int
		typeQuality  = make(map[string]float64)
		typeQualityN = make(map[string]int)
		sleepHours   float64
		sleepN       int
		activeDays   = make(map[string]bool)
	)
	windowStart := ec.AsOf.AddDate(0, 0, -consistencyWindowDays)

	for _, a := range activities {
		if a == nil || a.Type == "" {
			skipped++
			continue
		}
		if !ec.AsOf.IsZero() && !a.OccurredAt.Before(ec.AsOf) {
			continue
		}

		ec.ActivityCounts[a.Type]++
		if a.Dimension != nil && a.Dimension.Valid() {
			ec.DimensionActivityCounts[*a.Dimension]++
		}

		minutes := a.DurationMinutes()
		if hours, ok := a.Metric(model.MetricKeyHours); ok && a.Type == model.ActivitySleep {
			sleepHours += hours
			sleepN++
			if minutes == 0 {
				minutes = hours * 60
			}
		}
		if minutes > 0 {
			ec.TimeTotals[a.Type+"_minutes"] += minutes
			ec.TimeTotals[MetricTotalMinutes] += minutes
		}

		if q, ok := a.Metric(model.MetricKeyQuality); ok {
			qualitySum += q
			qualityN++
			typeQuality[a.Type] += q
			typeQualityN[a.Type]++
		}

		if !a.OccurredAt.Before(windowStart) {
			activeDays[model.DateKey(a.OccurredAt, loc)] = true
		}
	}

	if qualityN > 0 {
		ec.QualityMetrics[MetricAverageQuality] = qualitySum / float64(qualityN)
	}
	for typ, sum := range typeQuality {
		ec.QualityMetrics[typ+"_quality"] = sum / float64(typeQualityN[typ])
	}
	if sleepN > 0 {
		ec.QualityMetrics[MetricAverageSleepHours] = sleepHours / float64(sleepN)
	}
	ec.QualityMetrics[MetricConsistency30d] = math.Min(1, float64(len(activeDays))/consistencyWindowDays)
	return skipped
}
