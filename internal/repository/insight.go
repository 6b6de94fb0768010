package repository

import (
	"context"
	"fmt"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// InsightRepository stores correlation insights
type InsightRepository struct {
	db database.Database
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(db database.Database) *InsightRepository {
	return &InsightRepository{db: db}
}

// ListInsights returns a user's correlation insights
func (r *InsightRepository) ListInsights(ctx context.Context, userID string) ([]*model.CorrelationInsight, error) {
	query := `SELECT * FROM correlation_insight WHERE user_id = $user_id ORDER BY metric_a, metric_b`
	vars := map[string]interface{}{"user_id": userID}

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	rows := statementRows(results, 0)
	out := make([]*model.CorrelationInsight, 0, len(rows))
	for _, row := range rows {
		out = append(out, &model.CorrelationInsight{
			ID:              getString(row, "insight_id"),
			UserID:          getString(row, "user_id"),
			MetricA:         getString(row, "metric_a"),
			MetricB:         getString(row, "metric_b"),
			Coefficient:     getFloat(row, "coefficient"),
			Direction:       model.CorrelationDirection(getString(row, "direction")),
			SampleSize:      getInt(row, "sample_size"),
			ValidationCount: getInt(row, "validation_count"),
			FirstSeenAt:     getTime(row, "first_seen_at"),
			LastValidatedAt: getTime(row, "last_validated_at"),
		})
	}
	return out, nil
}

// SaveInsight upserts an insight by id
func (r *InsightRepository) SaveInsight(ctx context.Context, in *model.CorrelationInsight) error {
	query := `
		UPSERT type::thing('correlation_insight', $insight_id) SET
			insight_id = $insight_id,
			user_id = $user_id,
			metric_a = $metric_a,
			metric_b = $metric_b,
			coefficient = $coefficient,
			direction = $direction,
			sample_size = $sample_size,
			validation_count = $validation_count,
			first_seen_at = <datetime>$first_seen_at,
			last_validated_at = <datetime>$last_validated_at
	`
	vars := map[string]interface{}{
		"insight_id":        in.ID,
		"user_id":           in.UserID,
		"metric_a":          in.MetricA,
		"metric_b":          in.MetricB,
		"coefficient":       in.Coefficient,
		"direction":         string(in.Direction),
		"sample_size":       in.SampleSize,
		"validation_count":  in.ValidationCount,
		"first_seen_at":     formatTime(in.FirstSeenAt),
		"last_validated_at": formatTime(in.LastValidatedAt),
	}
	if err := r.db.Execute(ctx, query, vars); err != nil {
		return fmt.Errorf("save insight: %w", err)
	}
	return nil
}
