package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/forgo/progression/internal/model"
)

// HasRun reports whether the ledger holds an entry for (user, date)
func (s *Store) HasRun(ctx context.Context, userID, date string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&runRecord{}).
		Where("user_id = ? AND date = ?", userID, date).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check run history: %w", err)
	}
	return n > 0, nil
}

// LastRun returns the most recent ledger entry
func (s *Store) LastRun(ctx context.Context, userID string) (*model.RunHistoryEntry, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("date DESC").First(&rec).Error
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	return rec.entry(), nil
}

// RecordRun writes a ledger entry; an existing entry for the date is kept
func (s *Store) RecordRun(ctx context.Context, e *model.RunHistoryEntry) error {
	rec := runRecord{
		ID:           e.ID,
		UserID:       e.UserID,
		Date:         e.Date,
		ReportID:     e.ReportID,
		AllSucceeded: e.AllSucceeded,
		JobCount:     e.JobCount,
		ChangeCount:  e.ChangeCount,
		CompletedAt:  utc(e.CompletedAt),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit entries, newest first
func (s *Store) ListRuns(ctx context.Context, userID string, limit int) ([]*model.RunHistoryEntry, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []runRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]*model.RunHistoryEntry, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].entry())
	}
	return out, nil
}

// DeleteRunsBefore prunes entries dated before date
func (s *Store) DeleteRunsBefore(ctx context.Context, userID, date string) (int, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND date < ?", userID, date).Delete(&runRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune runs: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *runRecord) entry() *model.RunHistoryEntry {
	return &model.RunHistoryEntry{
		ID:           r.ID,
		UserID:       r.UserID,
		Date:         r.Date,
		ReportID:     r.ReportID,
		AllSucceeded: r.AllSucceeded,
		JobCount:     r.JobCount,
		ChangeCount:  r.ChangeCount,
		CompletedAt:  r.CompletedAt,
	}
}
