package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// ActivityRepository stores raw activities
type ActivityRepository struct {
	db     database.Database
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db database.Database, logger *zap.Logger) *ActivityRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityRepository{db: db, logger: logger}
}

// AppendActivity stores a raw activity; re-appending the same id is a no-op
func (r *ActivityRepository) AppendActivity(ctx context.Context, a *model.Activity) error {
	if a == nil || a.ID == "" || a.UserID == "" {
		return fmt.Errorf("%w: activity needs id and user id", model.ErrInvalidState)
	}

	query := `
		CREATE type::thing('activity', $activity_id) SET
			activity_id = $activity_id,
			user_id = $user_id,
			type = $type,
			dimension = $dimension,
			title = $title,
			metrics = $metrics,
			occurred_at = <datetime>$occurred_at,
			created_on = time::now()
	`
	metrics := a.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	dimension := ""
	if a.Dimension != nil {
		dimension = string(*a.Dimension)
	}
	vars := map[string]interface{}{
		"activity_id": a.ID,
		"user_id":     a.UserID,
		"type":        a.Type,
		"dimension":   dimension,
		"title":       a.Title,
		"metrics":     metrics,
		"occurred_at": formatTime(a.OccurredAt),
	}

	err := r.db.Execute(ctx, query, vars)
	if errors.Is(err, database.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivities returns activities with OccurredAt in [from, to), oldest
// first. A zero bound is open.
func (r *ActivityRepository) ListActivities(ctx context.Context, userID string, from, to time.Time) ([]*model.Activity, error) {
	conds := []string{"user_id = $user_id"}
	vars := map[string]interface{}{"user_id": userID}
	if !from.IsZero() {
		conds = append(conds, "occurred_at >= <datetime>$from")
		vars["from"] = formatTime(from)
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at < <datetime>$to")
		vars["to"] = formatTime(to)
	}
	query := `SELECT * FROM activity WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY occurred_at, activity_id`

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	rows := statementRows(results, 0)
	out := make([]*model.Activity, 0, len(rows))
	for _, row := range rows {
		a := &model.Activity{
			ID:         getString(row, "activity_id"),
			UserID:     getString(row, "user_id"),
			Type:       getString(row, "type"),
			Title:      getString(row, "title"),
			OccurredAt: getTime(row, "occurred_at"),
			CreatedOn:  getTime(row, "created_on"),
		}
		if err := fromDocument(row["metrics"], &a.Metrics); err != nil {
			return nil, fmt.Errorf("%w: activity %s metrics: %v", model.ErrDataIntegrity, a.ID, err)
		}
		if dim := getString(row, "dimension"); dim != "" {
			d := model.Dimension(dim)
			if !d.Valid() {
				r.logger.Warn("dropping activity with unknown dimension",
					zap.String("id", a.ID),
					zap.String("dimension", dim))
				continue
			}
			a.Dimension = &d
		}
		out = append(out, a)
	}
	return out, nil
}
