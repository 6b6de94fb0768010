package sqlstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/forgo/progression/internal/model"
)

// AppendActivity stores a raw activity; re-appending the same id is a no-op
func (s *Store) AppendActivity(ctx context.Context, a *model.Activity) error {
	if a == nil || a.ID == "" || a.UserID == "" {
		return fmt.Errorf("%w: activity needs id and user id", model.ErrInvalidState)
	}
	rec := activityRecord{
		ID:         a.ID,
		UserID:     a.UserID,
		OccurredAt: utc(a.OccurredAt),
		Type:       a.Type,
		Title:      a.Title,
		Metrics:    datatypes.NewJSONType(a.Metrics),
		CreatedOn:  utc(a.CreatedOn),
	}
	if a.Dimension != nil {
		rec.Dimension = string(*a.Dimension)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivities returns activities with OccurredAt in [from, to), oldest
// first. A zero bound is open.
func (s *Store) ListActivities(ctx context.Context, userID string, from, to time.Time) ([]*model.Activity, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("occurred_at >= ?", utc(from))
	}
	if !to.IsZero() {
		q = q.Where("occurred_at < ?", utc(to))
	}
	var recs []activityRecord
	if err := q.Order("occurred_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	out := make([]*model.Activity, 0, len(recs))
	for _, rec := range recs {
		a := &model.Activity{
			ID:         rec.ID,
			UserID:     rec.UserID,
			Type:       rec.Type,
			Title:      rec.Title,
			Metrics:    rec.Metrics.Data(),
			OccurredAt: rec.OccurredAt,
			CreatedOn:  rec.CreatedOn,
		}
		if rec.Dimension != "" {
			d := model.Dimension(rec.Dimension)
			if !d.Valid() {
				s.logger.Warn("dropping activity with unknown dimension",
					zap.String("id", rec.ID),
					zap.String("dimension", rec.Dimension))
				continue
			}
			a.Dimension = &d
		}
		out = append(out, a)
	}
	return out, nil
}
