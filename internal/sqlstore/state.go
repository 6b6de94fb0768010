package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forgo/progression/internal/model"
)

// GetState loads and verifies a user's progression state
func (s *Store) GetState(ctx context.Context, userID string) (*model.ProgressionState, error) {
	var rec stateRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if err != nil {
		return nil, translate(err, "progression state")
	}
	st, err := model.DecodeState(rec.Payload, rec.Checksum)
	if err != nil {
		s.logger.Error("progression state failed verification",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}
	return st, nil
}

// SaveState upserts a state document. A stored document with a higher
// version is left in place.
func (s *Store) SaveState(ctx context.Context, st *model.ProgressionState) error {
	if st == nil || st.UserID == "" {
		return fmt.Errorf("%w: state without user id", model.ErrInvalidState)
	}
	payload, sum, err := model.EncodeState(st)
	if err != nil {
		return err
	}
	rec := stateRecord{
		UserID:   st.UserID,
		Version:  st.Version,
		Payload:  payload,
		Checksum: sum,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "payload", "checksum", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "progression_states.version <= excluded.version"},
		}},
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save progression state: %w", err)
	}
	return nil
}

// ListUserIDs returns every user with a stored state
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&stateRecord{}).Order("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

// DeleteState removes a user's state document
func (s *Store) DeleteState(ctx context.Context, userID string) error {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&stateRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete progression state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "progression state")
	}
	return nil
}

// isNotFound reports whether err is a GORM not-found error
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
