package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/forgo/progression/internal/model"
)

// AppendChanges appends change records to the log in one batch
func (s *Store) AppendChanges(ctx context.Context, changes []model.Change) error {
	if len(changes) == 0 {
		return nil
	}
	recs := make([]changeRecord, 0, len(changes))
	for _, c := range changes {
		rec := changeRecord{
			UserID:  c.UserID,
			At:      utc(c.At),
			Type:    string(c.Type),
			Subject: c.Subject,
			Before:  c.Before,
			After:   c.After,
			Message: c.Message,
		}
		if c.Dimension != nil {
			rec.Dimension = string(*c.Dimension)
		}
		recs = append(recs, rec)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(recs, 100).Error; err != nil {
		return fmt.Errorf("append changes: %w", err)
	}
	return nil
}

// ListChanges returns changes with At in [from, to), oldest first
func (s *Store) ListChanges(ctx context.Context, userID string, from, to time.Time) ([]model.Change, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("at >= ?", utc(from))
	}
	if !to.IsZero() {
		q = q.Where("at < ?", utc(to))
	}
	var recs []changeRecord
	if err := q.Order("at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	out := make([]model.Change, 0, len(recs))
	for _, rec := range recs {
		c := model.Change{
			Type:    model.ChangeType(rec.Type),
			UserID:  rec.UserID,
			Subject: rec.Subject,
			Before:  rec.Before,
			After:   rec.After,
			Message: rec.Message,
			At:      rec.At,
		}
		if rec.Dimension != "" {
			c.Dimension = model.DimensionPtr(model.Dimension(rec.Dimension))
		}
		out = append(out, c)
	}
	return out, nil
}
