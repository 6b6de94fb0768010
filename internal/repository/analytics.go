package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// AnalyticsRepository stores the daily rollups written by the batch
// pipeline: dimension snapshots, analytics rows and extracted metrics
type AnalyticsRepository struct {
	db database.Database
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db database.Database) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// SaveSnapshot stores one snapshot per (user, date), replacing an older one
func (r *AnalyticsRepository) SaveSnapshot(ctx context.Context, snap *model.DimensionSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	dims, err := toDocument(snap.Dimensions)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	query := `
		UPSERT type::thing('dimension_snapshot', [$user_id, $date]) SET
			snapshot_id = $snapshot_id,
			user_id = $user_id,
			date = $date,
			permanent_index = $permanent_index,
			overall_rating = $overall_rating,
			wellness_index = $wellness_index,
			dimensions = $dimensions,
			created_on = <datetime>$created_on
	`
	vars := map[string]interface{}{
		"snapshot_id":     snap.ID,
		"user_id":         snap.UserID,
		"date":            snap.Date,
		"permanent_index": snap.PermanentIndex,
		"overall_rating":  snap.OverallRating,
		"wellness_index":  snap.WellnessIndex,
		"dimensions":      dims,
		"created_on":      formatTime(snap.CreatedOn),
	}
	if err := r.db.Execute(ctx, query, vars); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshots dated in [from, to], oldest first. Empty
// bounds are open.
func (r *AnalyticsRepository) ListSnapshots(ctx context.Context, userID, from, to string) ([]*model.DimensionSnapshot, error) {
	query, vars := dateRangeQuery("dimension_snapshot", userID, from, to, "date")

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	rows := statementRows(results, 0)
	out := make([]*model.DimensionSnapshot, 0, len(rows))
	for _, row := range rows {
		snap := &model.DimensionSnapshot{
			ID:             getString(row, "snapshot_id"),
			UserID:         getString(row, "user_id"),
			Date:           getString(row, "date"),
			PermanentIndex: getInt(row, "permanent_index"),
			OverallRating:  getInt(row, "overall_rating"),
			WellnessIndex:  getFloatPtr(row, "wellness_index"),
			CreatedOn:      getTime(row, "created_on"),
		}
		if err := fromDocument(row["dimensions"], &snap.Dimensions); err != nil {
			return nil, fmt.Errorf("%w: snapshot %s: %v", model.ErrDataIntegrity, snap.Date, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// UpsertDailyAnalytics writes the analytics row for (user, date)
func (r *AnalyticsRepository) UpsertDailyAnalytics(ctx context.Context, row *model.DailyAnalytics) error {
	xp, err := toDocument(row.XPByDimension)
	if err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	counts, err := toDocument(row.ActivityCounts)
	if err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}

	query := `
		UPSERT type::thing('daily_analytics', [$user_id, $date]) SET
			user_id = $user_id,
			date = $date,
			xp_by_dimension = $xp_by_dimension,
			activity_counts = $activity_counts,
			active_minutes = $active_minutes,
			activity_total = $activity_total,
			updated_on = <datetime>$updated_on
	`
	vars := map[string]interface{}{
		"user_id":         row.UserID,
		"date":            row.Date,
		"xp_by_dimension": xp,
		"activity_counts": counts,
		"active_minutes":  row.ActiveMinutes,
		"activity_total":  row.ActivityTotal,
		"updated_on":      formatTime(row.UpdatedOn),
	}
	if err := r.db.Execute(ctx, query, vars); err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	return nil
}

// GetDailyAnalytics returns the analytics row for (user, date)
func (r *AnalyticsRepository) GetDailyAnalytics(ctx context.Context, userID, date string) (*model.DailyAnalytics, error) {
	query := `SELECT * FROM type::thing('daily_analytics', [$user_id, $date])`
	vars := map[string]interface{}{"user_id": userID, "date": date}

	result, err := r.db.QueryOne(ctx, query, vars)
	if err != nil {
		return nil, translate(err, "daily analytics")
	}
	data, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected analytics row %T", model.ErrDataIntegrity, result)
	}

	out := &model.DailyAnalytics{
		UserID:        getString(data, "user_id"),
		Date:          getString(data, "date"),
		ActiveMinutes: getFloat(data, "active_minutes"),
		ActivityTotal: getInt(data, "activity_total"),
		UpdatedOn:     getTime(data, "updated_on"),
	}
	if err := fromDocument(data["xp_by_dimension"], &out.XPByDimension); err != nil {
		return nil, fmt.Errorf("%w: analytics xp: %v", model.ErrDataIntegrity, err)
	}
	if err := fromDocument(data["activity_counts"], &out.ActivityCounts); err != nil {
		return nil, fmt.Errorf("%w: analytics counts: %v", model.ErrDataIntegrity, err)
	}
	return out, nil
}

// UpsertDailyMetrics writes metric rows keyed by (user, date, metric) in one
// transaction
func (r *AnalyticsRepository) UpsertDailyMetrics(ctx context.Context, metrics []model.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	query := `
		UPSERT type::thing('daily_metric', [$user_id, $date, $metric]) SET
			user_id = $user_id,
			date = $date,
			metric = $metric,
			metric_value = $metric_value,
			samples = $samples
	`
	batch := database.NewAtomicBatch()
	for _, m := range metrics {
		batch.Add(query, map[string]interface{}{
			"user_id":      m.UserID,
			"date":         m.Date,
			"metric":       m.Metric,
			"metric_value": m.Value,
			"samples":      m.Samples,
		})
	}
	if err := batch.Execute(ctx, r.db); err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

// ListDailyMetrics returns metric rows dated in [from, to], ordered by
// metric then date. Empty bounds are open.
func (r *AnalyticsRepository) ListDailyMetrics(ctx context.Context, userID, from, to string) ([]model.DailyMetric, error) {
	query, vars := dateRangeQuery("daily_metric", userID, from, to, "metric, date")

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	rows := statementRows(results, 0)
	out := make([]model.DailyMetric, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.DailyMetric{
			UserID:  getString(row, "user_id"),
			Date:    getString(row, "date"),
			Metric:  getString(row, "metric"),
			Value:   getFloat(row, "metric_value"),
			Samples: getInt(row, "samples"),
		})
	}
	return out, nil
}

// dateRangeQuery selects a user's rows from table with date in [from, to]
func dateRangeQuery(table, userID, from, to, order string) (string, map[string]interface{}) {
	conds := []string{"user_id = $user_id"}
	vars := map[string]interface{}{"user_id": userID}
	if from != "" {
		conds = append(conds, "date >= $from")
		vars["from"] = from
	}
	if to != "" {
		conds = append(conds, "date <= $to")
		vars["to"] = to
	}
	return "SELECT * FROM " + table + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY " + order, vars
}
