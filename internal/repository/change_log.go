package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// ChangeLogRepository stores the append-only change log
type ChangeLogRepository struct {
	db database.Database
}

// NewChangeLogRepository creates a new change log repository
func NewChangeLogRepository(db database.Database) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

// AppendChanges appends change records to the log in one transaction
func (r *ChangeLogRepository) AppendChanges(ctx context.Context, changes []model.Change) error {
	if len(changes) == 0 {
		return nil
	}

	query := `
		CREATE change_log SET
			user_id = $user_id,
			type = $type,
			dimension = $dimension,
			subject = $subject,
			value_before = $before,
			value_after = $after,
			message = $message,
			changed_at = <datetime>$at,
			seq = $seq
	`
	batch := database.NewAtomicBatch()
	for i, c := range changes {
		dimension := ""
		if c.Dimension != nil {
			dimension = string(*c.Dimension)
		}
		batch.Add(query, map[string]interface{}{
			"user_id":   c.UserID,
			"type":      string(c.Type),
			"dimension": dimension,
			"subject":   c.Subject,
			"before":    c.Before,
			"after":     c.After,
			"message":   c.Message,
			"at":        formatTime(c.At),
			"seq":       i,
		})
	}
	if err := batch.Execute(ctx, r.db); err != nil {
		return fmt.Errorf("append changes: %w", err)
	}
	return nil
}

// ListChanges returns changes with At in [from, to), oldest first
func (r *ChangeLogRepository) ListChanges(ctx context.Context, userID string, from, to time.Time) ([]model.Change, error) {
	conds := []string{"user_id = $user_id"}
	vars := map[string]interface{}{"user_id": userID}
	if !from.IsZero() {
		conds = append(conds, "changed_at >= <datetime>$from")
		vars["from"] = formatTime(from)
	}
	if !to.IsZero() {
		conds = append(conds, "changed_at < <datetime>$to")
		vars["to"] = formatTime(to)
	}
	query := `SELECT * FROM change_log WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY changed_at, seq`

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}

	rows := statementRows(results, 0)
	out := make([]model.Change, 0, len(rows))
	for _, row := range rows {
		c := model.Change{
			Type:    model.ChangeType(getString(row, "type")),
			UserID:  getString(row, "user_id"),
			Subject: getString(row, "subject"),
			Before:  getFloat(row, "value_before"),
			After:   getFloat(row, "value_after"),
			Message: getString(row, "message"),
			At:      getTime(row, "changed_at"),
		}
		if dim := getString(row, "dimension"); dim != "" {
			c.Dimension = model.DimensionPtr(model.Dimension(dim))
		}
		out = append(out, c)
	}
	return out, nil
}
