package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// BadgeUnlockRepository stores badge unlocks, one per (user, badge)
type BadgeUnlockRepository struct {
	db database.Database
}

// NewBadgeUnlockRepository creates a new badge unlock repository
func NewBadgeUnlockRepository(db database.Database) *BadgeUnlockRepository {
	return &BadgeUnlockRepository{db: db}
}

// ListUnlocks returns a user's unlocks, oldest first
func (r *BadgeUnlockRepository) ListUnlocks(ctx context.Context, userID string) ([]*model.BadgeUnlock, error) {
	query := `SELECT * FROM badge_unlock WHERE user_id = $user_id ORDER BY unlocked_at, badge_id`
	vars := map[string]interface{}{"user_id": userID}

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	rows := statementRows(results, 0)
	out := make([]*model.BadgeUnlock, 0, len(rows))
	for _, row := range rows {
		out = append(out, &model.BadgeUnlock{
			ID:         getString(row, "unlock_id"),
			UserID:     getString(row, "user_id"),
			BadgeID:    getString(row, "badge_id"),
			Tier:       model.BadgeTier(getString(row, "tier")),
			XPAwarded:  getInt64(row, "xp_awarded"),
			UnlockedAt: getTime(row, "unlocked_at"),
		})
	}
	return out, nil
}

// RecordUnlock stores the unlock once per (user, badge) and reports whether
// this call created it
func (r *BadgeUnlockRepository) RecordUnlock(ctx context.Context, u *model.BadgeUnlock) (bool, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `
		CREATE type::thing('badge_unlock', [$user_id, $badge_id]) SET
			unlock_id = $unlock_id,
			user_id = $user_id,
			badge_id = $badge_id,
			tier = $tier,
			xp_awarded = $xp_awarded,
			unlocked_at = <datetime>$unlocked_at
	`
	vars := map[string]interface{}{
		"unlock_id":   u.ID,
		"user_id":     u.UserID,
		"badge_id":    u.BadgeID,
		"tier":        string(u.Tier),
		"xp_awarded":  u.XPAwarded,
		"unlocked_at": formatTime(u.UnlockedAt),
	}

	err := r.db.Execute(ctx, query, vars)
	if errors.Is(err, database.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record unlock: %w", err)
	}
	return true, nil
}
