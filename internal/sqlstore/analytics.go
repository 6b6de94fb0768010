package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/forgo/progression/internal/model"
)

// SaveSnapshot stores one snapshot per (user, date), replacing an older one
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.DimensionSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	rec := snapshotRecord{
		ID:             snap.ID,
		UserID:         snap.UserID,
		Date:           snap.Date,
		PermanentIndex: snap.PermanentIndex,
		OverallRating:  snap.OverallRating,
		WellnessIndex:  snap.WellnessIndex,
		Dimensions:     datatypes.NewJSONType(snap.Dimensions),
		CreatedOn:      utc(snap.CreatedOn),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"permanent_index", "overall_rating", "wellness_index", "dimensions", "created_on",
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshots dated in [from, to], oldest first. Empty
// bounds are open.
func (s *Store) ListSnapshots(ctx context.Context, userID, from, to string) ([]*model.DimensionSnapshot, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	var recs []snapshotRecord
	if err := q.Order("date").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]*model.DimensionSnapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &model.DimensionSnapshot{
			ID:             rec.ID,
			UserID:         rec.UserID,
			Date:           rec.Date,
			PermanentIndex: rec.PermanentIndex,
			OverallRating:  rec.OverallRating,
			WellnessIndex:  rec.WellnessIndex,
			Dimensions:     rec.Dimensions.Data(),
			CreatedOn:      rec.CreatedOn,
		})
	}
	return out, nil
}

// UpsertDailyAnalytics writes the analytics row for (user, date)
func (s *Store) UpsertDailyAnalytics(ctx context.Context, row *model.DailyAnalytics) error {
	rec := analyticsRecord{
		UserID:         row.UserID,
		Date:           row.Date,
		XPByDimension:  datatypes.NewJSONType(row.XPByDimension),
		ActivityCounts: datatypes.NewJSONType(row.ActivityCounts),
		ActiveMinutes:  row.ActiveMinutes,
		ActivityTotal:  row.ActivityTotal,
		UpdatedOn:      utc(row.UpdatedOn),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	return nil
}

// GetDailyAnalytics returns the analytics row for (user, date)
func (s *Store) GetDailyAnalytics(ctx context.Context, userID, date string) (*model.DailyAnalytics, error) {
	var rec analyticsRecord
	err := s.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).First(&rec).Error
	if err != nil {
		return nil, translate(err, "daily analytics")
	}
	return &model.DailyAnalytics{
		UserID:         rec.UserID,
		Date:           rec.Date,
		XPByDimension:  rec.XPByDimension.Data(),
		ActivityCounts: rec.ActivityCounts.Data(),
		ActiveMinutes:  rec.ActiveMinutes,
		ActivityTotal:  rec.ActivityTotal,
		UpdatedOn:      rec.UpdatedOn,
	}, nil
}

// UpsertDailyMetrics writes metric rows keyed by (user, date, metric)
func (s *Store) UpsertDailyMetrics(ctx context.Context, metrics []model.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	recs := make([]metricRecord, 0, len(metrics))
	for _, m := range metrics {
		recs = append(recs, metricRecord{
			UserID:  m.UserID,
			Date:    m.Date,
			Metric:  m.Metric,
			Value:   m.Value,
			Samples: m.Samples,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&recs).Error
	if err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

// ListDailyMetrics returns metric rows dated in [from, to], ordered by
// metric then date. Empty bounds are open.
func (s *Store) ListDailyMetrics(ctx context.Context, userID, from, to string) ([]model.DailyMetric, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	var recs []metricRecord
	if err := q.Order("metric, date").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	out := make([]model.DailyMetric, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.DailyMetric{
			UserID:  rec.UserID,
			Date:    rec.Date,
			Metric:  rec.Metric,
			Value:   rec.Value,
			Samples: rec.Samples,
		})
	}
	return out, nil
}

// ListInsights returns a user's correlation insights
func (s *Store) ListInsights(ctx context.Context, userID string) ([]*model.CorrelationInsight, error) {
	var recs []insightRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("metric_a, metric_b").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	out := make([]*model.CorrelationInsight, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &model.CorrelationInsight{
			ID:              rec.ID,
			UserID:          rec.UserID,
			MetricA:         rec.MetricA,
			MetricB:         rec.MetricB,
			Coefficient:     rec.Coefficient,
			Direction:       model.CorrelationDirection(rec.Direction),
			SampleSize:      rec.SampleSize,
			ValidationCount: rec.ValidationCount,
			FirstSeenAt:     rec.FirstSeenAt,
			LastValidatedAt: rec.LastValidatedAt,
		})
	}
	return out, nil
}

// SaveInsight upserts an insight by id
func (s *Store) SaveInsight(ctx context.Context, in *model.CorrelationInsight) error {
	rec := insightRecord{
		ID:              in.ID,
		UserID:          in.UserID,
		MetricA:         in.MetricA,
		MetricB:         in.MetricB,
		Coefficient:     in.Coefficient,
		Direction:       string(in.Direction),
		SampleSize:      in.SampleSize,
		ValidationCount: in.ValidationCount,
		FirstSeenAt:     utc(in.FirstSeenAt),
		LastValidatedAt: utc(in.LastValidatedAt),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("save insight: %w", err)
	}
	return nil
}
