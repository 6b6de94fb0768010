package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/forgo/progression/internal/model"
)

// ListUnlocks returns a user's unlocks, oldest first
func (s *Store) ListUnlocks(ctx context.Context, userID string) ([]*model.BadgeUnlock, error) {
	var recs []unlockRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("unlocked_at, badge_id").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	out := make([]*model.BadgeUnlock, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &model.BadgeUnlock{
			ID:         rec.ID,
			UserID:     rec.UserID,
			BadgeID:    rec.BadgeID,
			Tier:       model.BadgeTier(rec.Tier),
			XPAwarded:  rec.XPAwarded,
			UnlockedAt: rec.UnlockedAt,
		})
	}
	return out, nil
}

// RecordUnlock stores the unlock once per (user, badge) and reports whether
// this call created it
func (s *Store) RecordUnlock(ctx context.Context, u *model.BadgeUnlock) (bool, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	rec := unlockRecord{
		ID:         u.ID,
		UserID:     u.UserID,
		BadgeID:    u.BadgeID,
		Tier:       string(u.Tier),
		XPAwarded:  u.XPAwarded,
		UnlockedAt: utc(u.UnlockedAt),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("record unlock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
