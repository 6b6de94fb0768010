package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// Scheduler defaults
const (
	DefaultMaxCatchUpDays          = 7
	DefaultRunHistoryRetentionDays = 90
	DefaultDecayRate               = 0.05
)

// RunHistoryRepository defines the interface for the durable run ledger
type RunHistoryRepository interface {
	HasRun(ctx context.Context, userID, date string) (bool, error)
	// LastRun returns model.ErrNotFound when the user never completed a run
	LastRun(ctx context.Context, userID string) (*model.RunHistoryEntry, error)
	RecordRun(ctx context.Context, entry *model.RunHistoryEntry) error
	ListRuns(ctx context.Context, userID string, limit int) ([]*model.RunHistoryEntry, error)
	// DeleteRunsBefore removes entries dated before date and returns how many
	DeleteRunsBefore(ctx context.Context, userID, date string) (int, error)
}

// SnapshotRepository defines the interface for dimension snapshots
type SnapshotRepository interface {
	// SaveSnapshot stores one snapshot per (user, date), replacing an older one
	SaveSnapshot(ctx context.Context, snapshot *model.DimensionSnapshot) error
	ListSnapshots(ctx context.Context, userID, from, to string) ([]*model.DimensionSnapshot, error)
}

// AnalyticsRepository defines the interface for daily analytics rows
type AnalyticsRepository interface {
	UpsertDailyAnalytics(ctx context.Context, row *model.DailyAnalytics) error
}

// MetricRepository defines the interface for extracted daily metrics
type MetricRepository interface {
	UpsertDailyMetrics(ctx context.Context, metrics []model.DailyMetric) error
}

// UserSource lists the users the scheduler maintains
type UserSource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// JobFunc is the body of one pipeline job
type JobFunc func(ctx context.Context, run *Run) (items int, changes []model.Change, err error)

// Run describes the pipeline invocation for one user and calendar date
type Run struct {
	UserID string
	// Date is midnight of the processed date
	Date time.Time
	// Prior is midnight of the day before Date; daily activity checks look at it
	Prior time.Time
	Key   string
}

// DailyScheduler runs the ordered maintenance pipeline at most once per user
// and calendar date and catches up on missed days.
type DailyScheduler struct {
	progression *service.ProgressionService
	badges      *service.BadgeService
	analyzer    *service.CorrelationAnalyzer
	aggregator  *service.DimensionAggregator
	activities  service.ActivityRepository
	runs        RunHistoryRepository
	snapshots   SnapshotRepository
	analytics   AnalyticsRepository
	metrics     MetricRepository
	hub         *service.ChangeHub
	logger      *zap.Logger
	now         func() time.Time
	loc         *time.Location

	decayRate      float64
	maxCatchUp     int
	retentionDays  int
	defaultUserID  string
	users          UserSource
	jobs           map[model.JobName]JobFunc
	runMu          sync.Mutex
}

// SchedulerConfig holds configuration for the daily scheduler
type SchedulerConfig struct {
	Progression *service.ProgressionService
	Badges      *service.BadgeService
	Analyzer    *service.CorrelationAnalyzer
	Aggregator  *service.DimensionAggregator
	Activities  service.ActivityRepository
	Runs        RunHistoryRepository
	Snapshots   SnapshotRepository
	Analytics   AnalyticsRepository
	Metrics     MetricRepository
	Users       UserSource
	Hub         *service.ChangeHub
	Logger      *zap.Logger
	Now         func() time.Time
	Location    *time.Location

	DecayRate               float64
	MaxCatchUpDays          int
	RunHistoryRetentionDays int
	DefaultUserID           string
}

// NewDailyScheduler creates a new daily scheduler
func NewDailyScheduler(cfg SchedulerConfig) *DailyScheduler {
	s := &DailyScheduler{
		progression:   cfg.Progression,
		badges:        cfg.Badges,
		analyzer:      cfg.Analyzer,
		aggregator:    cfg.Aggregator,
		activities:    cfg.Activities,
		runs:          cfg.Runs,
		snapshots:     cfg.Snapshots,
		analytics:     cfg.Analytics,
		metrics:       cfg.Metrics,
		users:         cfg.Users,
		hub:           cfg.Hub,
		logger:        cfg.Logger,
		now:           cfg.Now,
		loc:           cfg.Location,
		decayRate:     cfg.DecayRate,
		maxCatchUp:    cfg.MaxCatchUpDays,
		retentionDays: cfg.RunHistoryRetentionDays,
		defaultUserID: cfg.DefaultUserID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.decayRate <= 0 {
		s.decayRate = DefaultDecayRate
	}
	if s.maxCatchUp <= 0 {
		s.maxCatchUp = DefaultMaxCatchUpDays
	}
	if s.retentionDays <= 0 {
		s.retentionDays = DefaultRunHistoryRetentionDays
	}
	s.jobs = s.defaultJobs()
	return s
}

// SetJob replaces the body of one pipeline job
func (s *DailyScheduler) SetJob(name model.JobName, fn JobFunc) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.jobs[name] = fn
}

// Today returns midnight of the current calendar day
func (s *DailyScheduler) Today() time.Time {
	return model.StartOfDay(s.now(), s.loc)
}

// Users returns the maintained users: those in storage, or the default user
func (s *DailyScheduler) Users(ctx context.Context) ([]string, error) {
	if s.users != nil {
		ids, err := s.users.ListUserIDs(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	if s.defaultUserID == "" {
		return nil, nil
	}
	return []string{s.defaultUserID}, nil
}

// RunNow runs the pipeline for today
func (s *DailyScheduler) RunNow(ctx context.Context, userID string) (*model.DailyCronReport, error) {
	return s.RunForDate(ctx, userID, s.now())
}

// RunForDate runs the pipeline for the calendar date of date. A date already
// in the ledger yields an empty, skipped report. The ledger entry is written
// only after every job has been attempted and the context is still live.
func (s *DailyScheduler) RunForDate(ctx context.Context, userID string, date time.Time) (*model.DailyCronReport, error) {
	if userID == "" {
		return nil, service.ErrUserIDRequired
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runLocked(ctx, userID, date)
}

func (s *DailyScheduler) runLocked(ctx context.Context, userID string, date time.Time) (*model.DailyCronReport, error) {
	day := model.StartOfDay(date, s.loc)
	run := &Run{
		UserID: userID,
		Date:   day,
		Prior:  day.AddDate(0, 0, -1),
		Key:    model.DateKey(day, s.loc),
	}
	report := &model.DailyCronReport{
		ID:        uuid.NewString(),
		UserID:    userID,
		Date:      run.Key,
		StartedAt: s.now(),
	}

	done, err := s.runs.HasRun(ctx, userID, run.Key)
	if err != nil {
		return nil, fmt.Errorf("check run history: %w", err)
	}
	if done {
		report.Skipped = true
		report.FinishedAt = report.StartedAt
		s.logger.Debug("daily run already recorded",
			zap.String("user_id", userID),
			zap.String("date", run.Key))
		return report, nil
	}

	s.logger.Info("daily run started",
		zap.String("user_id", userID),
		zap.String("date", run.Key))

	report.AllSucceeded = true
	for _, name := range model.PipelineOrder {
		if err := ctx.Err(); err != nil {
			report.AllSucceeded = false
			report.FinishedAt = s.now()
			s.logger.Warn("daily run interrupted",
				zap.String("user_id", userID),
				zap.String("date", run.Key),
				zap.String("next_job", string(name)),
				zap.Error(err))
			return report, err
		}
		result := s.runJob(ctx, name, run)
		if !result.Success {
			report.AllSucceeded = false
		}
		report.Jobs = append(report.Jobs, result)
	}
	report.FinishedAt = s.now()

	// a cancellation during the last job leaves the date open for a retry
	if err := ctx.Err(); err != nil {
		report.AllSucceeded = false
		return report, err
	}

	changes := report.Changes()
	entry := &model.RunHistoryEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Date:         run.Key,
		ReportID:     report.ID,
		AllSucceeded: report.AllSucceeded,
		JobCount:     len(report.Jobs),
		ChangeCount:  len(changes),
		CompletedAt:  report.FinishedAt,
	}
	if err := s.runs.RecordRun(ctx, entry); err != nil {
		return report, fmt.Errorf("record run history: %w", err)
	}

	s.hub.PublishReport(report)
	if !report.AllSucceeded {
		s.logger.Warn("daily run finished with failures",
			zap.String("user_id", userID),
			zap.String("date", run.Key),
			zap.Any("failed_jobs", failedJobs(report)))
		return report, nil
	}
	s.logger.Info("daily run finished",
		zap.String("user_id", userID),
		zap.String("date", run.Key),
		zap.Int("changes", len(changes)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// runJob executes one job, converting errors and panics into a failed result
func (s *DailyScheduler) runJob(ctx context.Context, name model.JobName, run *Run) (result model.CronJobResult) {
	result = model.CronJobResult{Job: name, StartedAt: s.now()}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", r)
			s.logger.Error("pipeline job panicked",
				zap.String("job", string(name)),
				zap.String("date", run.Key),
				zap.Any("panic", r))
		}
		result.Duration = time.Since(start)
	}()

	fn, ok := s.jobs[name]
	if !ok || fn == nil {
		result.Success = true
		return result
	}
	items, changes, err := fn(ctx, run)
	result.ItemsProcessed = items
	result.Changes = changes
	if err != nil {
		result.Error = err.Error()
		s.logger.Warn("pipeline job failed",
			zap.String("job", string(name)),
			zap.String("user_id", run.UserID),
			zap.String("date", run.Key),
			zap.Error(err))
		return result
	}
	result.Success = true
	s.logger.Debug("pipeline job finished",
		zap.String("job", string(name)),
		zap.String("date", run.Key),
		zap.Int("items", items),
		zap.Duration("duration", time.Since(start)))
	return result
}

// CatchUp runs the pipeline once per missed day up to today, oldest first,
// capped at the configured maximum. A user without any recorded run gets
// today's run only.
func (s *DailyScheduler) CatchUp(ctx context.Context, userID string) ([]*model.DailyCronReport, error) {
	if userID == "" {
		return nil, service.ErrUserIDRequired
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	today := s.Today()
	missed := 1
	last, err := s.runs.LastRun(ctx, userID)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load last run: %w", err)
	default:
		lastDay, perr := model.ParseDateKey(last.Date, s.loc)
		if perr != nil {
			return nil, fmt.Errorf("%w: run history date %q", model.ErrDataIntegrity, last.Date)
		}
		missed = model.DaysBetween(lastDay, today, s.loc)
	}
	if missed <= 0 {
		return nil, nil
	}
	if missed > s.maxCatchUp {
		s.logger.Info("catch-up capped",
			zap.String("user_id", userID),
			zap.Int("missed_days", missed),
			zap.Int("max", s.maxCatchUp))
		missed = s.maxCatchUp
	}

	reports := make([]*model.DailyCronReport, 0, missed)
	for i := missed - 1; i >= 0; i-- {
		report, err := s.runLocked(ctx, userID, today.AddDate(0, 0, -i))
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// CatchUpAll catches up every maintained user. Failures of one user do not
// stop the others.
func (s *DailyScheduler) CatchUpAll(ctx context.Context) (map[string][]*model.DailyCronReport, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make(map[string][]*model.DailyCronReport, len(users))
	var errs []error
	for _, userID := range users {
		reports, err := s.CatchUp(ctx, userID)
		out[userID] = reports
		if err != nil {
			errs = append(errs, fmt.Errorf("catch up %s: %w", userID, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return out, errors.Join(errs...)
}

// History returns the most recent ledger entries
func (s *DailyScheduler) History(ctx context.Context, userID string, limit int) ([]*model.RunHistoryEntry, error) {
	return s.runs.ListRuns(ctx, userID, limit)
}
