package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// StateRepository stores progression state documents keyed by user id
type StateRepository struct {
	db     database.Database
	logger *zap.Logger
}

// NewStateRepository creates a new state repository
func NewStateRepository(db database.Database, logger *zap.Logger) *StateRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateRepository{db: db, logger: logger}
}

// GetState loads and verifies a user's progression state
func (r *StateRepository) GetState(ctx context.Context, userID string) (*model.ProgressionState, error) {
	query := `SELECT payload, checksum FROM type::thing('progression_state', $user_id)`
	vars := map[string]interface{}{"user_id": userID}

	result, err := r.db.QueryOne(ctx, query, vars)
	if err != nil {
		return nil, translate(err, "progression state")
	}
	data, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected state row %T", model.ErrDataIntegrity, result)
	}

	st, err := model.DecodeState([]byte(getString(data, "payload")), getString(data, "checksum"))
	if err != nil {
		r.logger.Error("progression state failed verification",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}
	return st, nil
}

// SaveState upserts a state document. A stored document with a higher
// version is left in place.
func (r *StateRepository) SaveState(ctx context.Context, st *model.ProgressionState) error {
	if st == nil || st.UserID == "" {
		return fmt.Errorf("%w: state without user id", model.ErrInvalidState)
	}
	payload, sum, err := model.EncodeState(st)
	if err != nil {
		return err
	}

	query := `
		UPSERT type::thing('progression_state', $user_id) SET
			user_id = $user_id,
			version = $version,
			payload = $payload,
			checksum = $checksum,
			updated_on = time::now()
		WHERE version = NONE OR version <= $version
	`
	vars := map[string]interface{}{
		"user_id":  st.UserID,
		"version":  st.Version,
		"payload":  string(payload),
		"checksum": sum,
	}
	if err := r.db.Execute(ctx, query, vars); err != nil {
		return fmt.Errorf("save progression state: %w", err)
	}
	return nil
}

// ListUserIDs returns every user with a stored state
func (r *StateRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	results, err := r.db.Query(ctx, `SELECT user_id FROM progression_state ORDER BY user_id`, nil)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	rows := statementRows(results, 0)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := getString(row, "user_id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteState removes a user's state document
func (r *StateRepository) DeleteState(ctx context.Context, userID string) error {
	query := `DELETE type::thing('progression_state', $user_id) RETURN BEFORE`
	vars := map[string]interface{}{"user_id": userID}

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return fmt.Errorf("delete progression state: %w", err)
	}
	if len(statementRows(results, 0)) == 0 {
		return translate(database.ErrNotFound, "progression state")
	}
	return nil
}
