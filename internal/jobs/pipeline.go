package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

func (s *DailyScheduler) defaultJobs() map[model.JobName]JobFunc {
	return map[model.JobName]JobFunc{
		model.JobStreakCheck:            s.streakCheck,
		model.JobRatingRegression:       s.ratingRegression,
		model.JobDimensionSnapshot:      s.dimensionSnapshot,
		model.JobBadgeCheck:             s.badgeCheck,
		model.JobLevelRecalculation:     s.levelRecalculation,
		model.JobAnalyticsAggregation:   s.analyticsAggregation,
		model.JobSemanticExtraction:     s.semanticExtraction,
		model.JobCorrelationComputation: s.correlationComputation,
		model.JobCacheCleanup:           s.cacheCleanup,
	}
}

// streakCheck breaks (or freezes) streaks that missed the prior day
func (s *DailyScheduler) streakCheck(ctx context.Context, run *Run) (int, []model.Change, error) {
	return s.progression.CheckStreaks(ctx, run.UserID, run.Prior)
}

// priorActivities returns the activities of the day before the run date
func (s *DailyScheduler) priorActivities(ctx context.Context, run *Run) ([]*model.Activity, error) {
	if s.activities == nil {
		return nil, nil
	}
	acts, err := s.activities.ListActivities(ctx, run.UserID, run.Prior, run.Date)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return acts, nil
}

// ratingRegression decays the rating of every dimension without activity on
// the prior day
func (s *DailyScheduler) ratingRegression(ctx context.Context, run *Run) (int, []model.Change, error) {
	acts, err := s.priorActivities(ctx, run)
	if err != nil {
		return 0, nil, err
	}
	active := make(map[model.Dimension]bool)
	for _, a := range acts {
		if a != nil && a.Dimension != nil {
			active[*a.Dimension] = true
		}
	}
	var idle []model.Dimension
	for _, d := range model.AllDimensions {
		if !active[d] {
			idle = append(idle, d)
		}
	}
	changes, err := s.progression.Regress(ctx, run.UserID, idle, s.decayRate, run.Date)
	return len(idle), changes, err
}

// dimensionSnapshot stores the state of every dimension for the run date
func (s *DailyScheduler) dimensionSnapshot(ctx context.Context, run *Run) (int, []model.Change, error) {
	if s.snapshots == nil {
		return 0, nil, nil
	}
	st, err := s.progression.State(ctx, run.UserID)
	if err != nil {
		return 0, nil, err
	}
	snap := &model.DimensionSnapshot{
		ID:             uuid.NewString(),
		UserID:         run.UserID,
		Date:           run.Key,
		PermanentIndex: st.PermanentIndex,
		OverallRating:  st.OverallRating,
		Dimensions:     make(map[model.Dimension]model.DimensionStat, len(model.AllDimensions)),
		CreatedOn:      s.now(),
	}
	for _, d := range model.AllDimensions {
		p := st.Dimension(d)
		snap.Dimensions[d] = model.DimensionStat{
			Level:   p.Level,
			XP:      p.XP,
			TotalXP: p.TotalXP,
			Rating:  p.Rating,
		}
	}
	if s.aggregator != nil {
		idx, err := s.aggregator.Compute(ctx, run.UserID)
		if err != nil {
			s.logger.Warn("wellness index unavailable for snapshot",
				zap.String("user_id", run.UserID),
				zap.Error(err))
		} else if idx.HasValue {
			v := idx.Value
			snap.WellnessIndex = &v
		}
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return 0, nil, fmt.Errorf("save snapshot: %w", err)
	}
	change := model.Change{
		Type:    model.ChangeSnapshotTaken,
		UserID:  run.UserID,
		Subject: run.Key,
		After:   float64(st.OverallRating),
		Message: fmt.Sprintf("snapshot of %d dimensions", len(snap.Dimensions)),
		At:      run.Date,
	}
	return len(snap.Dimensions), []model.Change{change}, nil
}

// badgeCheck awards badges earned by activity up to the run date
func (s *DailyScheduler) badgeCheck(ctx context.Context, run *Run) (int, []model.Change, error) {
	unlocked, changes, err := s.badges.CheckAndAward(ctx, run.UserID, run.Date)
	return len(unlocked), changes, err
}

func (s *DailyScheduler) levelRecalculation(ctx context.Context, run *Run) (int, []model.Change, error) {
	changes, err := s.progression.RecalculateLevels(ctx, run.UserID)
	return len(model.AllDimensions), changes, err
}

// analyticsAggregation rolls the prior day's activity and XP into one row
func (s *DailyScheduler) analyticsAggregation(ctx context.Context, run *Run) (int, []model.Change, error) {
	if s.analytics == nil {
		return 0, nil, nil
	}
	acts, err := s.priorActivities(ctx, run)
	if err != nil {
		return 0, nil, err
	}
	row := &model.DailyAnalytics{
		UserID:         run.UserID,
		Date:           model.DateKey(run.Prior, s.loc),
		ActivityCounts: make(map[string]int),
		UpdatedOn:      s.now(),
	}
	for _, a := range acts {
		if a == nil || a.Type == "" {
			continue
		}
		row.ActivityCounts[a.Type]++
		row.ActivityTotal++
		row.ActiveMinutes += a.DurationMinutes()
	}

	changes, err := s.progression.Changes(ctx, run.UserID, run.Prior, run.Date)
	if err != nil {
		return 0, nil, fmt.Errorf("list changes: %w", err)
	}
	row.XPByDimension = service.XPByDimension(changes)

	if err := s.analytics.UpsertDailyAnalytics(ctx, row); err != nil {
		return 0, nil, fmt.Errorf("upsert analytics: %w", err)
	}
	return row.ActivityTotal, nil, nil
}

// semanticExtraction stores the prior day's named metrics for correlation
func (s *DailyScheduler) semanticExtraction(ctx context.Context, run *Run) (int, []model.Change, error) {
	if s.metrics == nil || s.analyzer == nil {
		return 0, nil, nil
	}
	acts, err := s.priorActivities(ctx, run)
	if err != nil {
		return 0, nil, err
	}
	metrics := service.ExtractDailyMetrics(run.UserID, acts, s.analyzer.Rules(), s.loc)
	if len(metrics) == 0 {
		return 0, nil, nil
	}
	if err := s.metrics.UpsertDailyMetrics(ctx, metrics); err != nil {
		return 0, nil, fmt.Errorf("upsert metrics: %w", err)
	}
	return len(metrics), nil, nil
}

func (s *DailyScheduler) correlationComputation(ctx context.Context, run *Run) (int, []model.Change, error) {
	if s.analyzer == nil {
		return 0, nil, nil
	}
	res, err := s.analyzer.Analyze(ctx, run.UserID, run.Date)
	if err != nil {
		return 0, nil, err
	}
	return res.PairsEvaluated, res.Changes, nil
}

// cacheCleanup prunes ledger entries older than the retention window
func (s *DailyScheduler) cacheCleanup(ctx context.Context, run *Run) (int, []model.Change, error) {
	cutoff := model.DateKey(run.Date.AddDate(0, 0, -s.retentionDays), s.loc)
	n, err := s.runs.DeleteRunsBefore(ctx, run.UserID, cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("prune run history: %w", err)
	}
	return n, nil, nil
}

// failedJobs lists the jobs of a report that did not succeed
func failedJobs(report *model.DailyCronReport) []model.JobName {
	var out []model.JobName
	for _, j := range report.Jobs {
		if !j.Success {
			out = append(out, j.Job)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}
