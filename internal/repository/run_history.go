package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/model"
)

// RunHistoryRepository is the durable ledger of completed daily runs
type RunHistoryRepository struct {
	db database.Database
}

// NewRunHistoryRepository creates a new run history repository
func NewRunHistoryRepository(db database.Database) *RunHistoryRepository {
	return &RunHistoryRepository{db: db}
}

// HasRun reports whether the ledger holds an entry for (user, date)
func (r *RunHistoryRepository) HasRun(ctx context.Context, userID, date string) (bool, error) {
	query := `SELECT count() AS count FROM run_history WHERE user_id = $user_id AND date = $date GROUP ALL`
	vars := map[string]interface{}{"user_id": userID, "date": date}

	result, err := r.db.QueryOne(ctx, query, vars)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check run history: %w", err)
	}
	return extractCount(result) > 0, nil
}

// LastRun returns the most recent ledger entry
func (r *RunHistoryRepository) LastRun(ctx context.Context, userID string) (*model.RunHistoryEntry, error) {
	query := `SELECT * FROM run_history WHERE user_id = $user_id ORDER BY date DESC LIMIT 1`
	vars := map[string]interface{}{"user_id": userID}

	result, err := r.db.QueryOne(ctx, query, vars)
	if errors.Is(err, database.ErrNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	row, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected run row %T", model.ErrDataIntegrity, result)
	}
	return parseRunRow(row), nil
}

// RecordRun writes a ledger entry; an existing entry for the date is kept
func (r *RunHistoryRepository) RecordRun(ctx context.Context, e *model.RunHistoryEntry) error {
	query := `
		CREATE type::thing('run_history', [$user_id, $date]) SET
			run_id = $run_id,
			user_id = $user_id,
			date = $date,
			report_id = $report_id,
			all_succeeded = $all_succeeded,
			job_count = $job_count,
			change_count = $change_count,
			completed_at = <datetime>$completed_at
	`
	vars := map[string]interface{}{
		"run_id":        e.ID,
		"user_id":       e.UserID,
		"date":          e.Date,
		"report_id":     e.ReportID,
		"all_succeeded": e.AllSucceeded,
		"job_count":     e.JobCount,
		"change_count":  e.ChangeCount,
		"completed_at":  formatTime(e.CompletedAt),
	}

	err := r.db.Execute(ctx, query, vars)
	if err != nil && !errors.Is(err, database.ErrDuplicate) {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit entries, newest first. A non-positive limit
// returns every entry.
func (r *RunHistoryRepository) ListRuns(ctx context.Context, userID string, limit int) ([]*model.RunHistoryEntry, error) {
	query := `SELECT * FROM run_history WHERE user_id = $user_id ORDER BY date DESC`
	vars := map[string]interface{}{"user_id": userID}
	if limit > 0 {
		query += ` LIMIT $limit`
		vars["limit"] = limit
	}

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	rows := statementRows(results, 0)
	out := make([]*model.RunHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, parseRunRow(row))
	}
	return out, nil
}

// DeleteRunsBefore prunes entries dated before date
func (r *RunHistoryRepository) DeleteRunsBefore(ctx context.Context, userID, date string) (int, error) {
	query := `DELETE run_history WHERE user_id = $user_id AND date < $date RETURN BEFORE`
	vars := map[string]interface{}{"user_id": userID, "date": date}

	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return len(statementRows(results, 0)), nil
}

func parseRunRow(row map[string]interface{}) *model.RunHistoryEntry {
	return &model.RunHistoryEntry{
		ID:           getString(row, "run_id"),
		UserID:       getString(row, "user_id"),
		Date:         getString(row, "date"),
		ReportID:     getString(row, "report_id"),
		AllSucceeded: getBool(row, "all_succeeded"),
		JobCount:     getInt(row, "job_count"),
		ChangeCount:  getInt(row, "change_count"),
		CompletedAt:  getTime(row, "completed_at"),
	}
}
