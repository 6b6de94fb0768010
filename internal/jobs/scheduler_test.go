package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
	"github.com/forgo/progression/internal/sqlstore"
)

// today is the wall clock of most scheduler tests
var today = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

func dayOf(offset int) time.Time {
	return time.Date(2026, 3, 5+offset, 0, 0, 0, 0, time.UTC)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	store       *sqlstore.Store
	clock       *testClock
	progression *service.ProgressionService
	badges      *service.BadgeService
	aggregator  *service.DimensionAggregator
	analyzer    *service.CorrelationAnalyzer
	scheduler   *DailyScheduler
}

// newHarness wires the services and the scheduler over an in-memory store.
// The caller closes the store.
func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	store, err := sqlstore.OpenMemory()
	require.NoError(t, err)

	h := &harness{store: store, clock: &testClock{t: now}}
	h.progression = service.NewProgressionService(service.ProgressionServiceConfig{
		States:     store,
		Activities: store,
		ChangeLog:  store,
		Location:   time.UTC,
		Now:        h.clock.Now,
	})
	catalog, err := service.DefaultBadgeCatalog()
	require.NoError(t, err)
	h.badges = service.NewBadgeService(service.BadgeServiceConfig{
		Engine: service.NewBadgeEngine(catalog),
		Builder: service.NewContextBuilder(service.ContextBuilderConfig{
			States:     h.progression,
			Activities: store,
			Unlocks:    store,
			Location:   time.UTC,
		}),
		Unlocks:     store,
		Progression: h.progression,
		Now:         h.clock.Now,
	})
	h.aggregator = service.NewDimensionAggregator(service.AggregatorConfig{
		States: h.progression,
		Now:    h.clock.Now,
	})
	h.analyzer = service.NewCorrelationAnalyzer(service.CorrelationAnalyzerConfig{
		Activities: store,
		Insights:   store,
		Location:   time.UTC,
	})
	h.scheduler = NewDailyScheduler(SchedulerConfig{
		Progression:    h.progression,
		Badges:         h.badges,
		Analyzer:       h.analyzer,
		Aggregator:     h.aggregator,
		Activities:     store,
		Runs:           store,
		Snapshots:      store,
		Analytics:      store,
		Metrics:        store,
		Users:          store,
		Location:       time.UTC,
		Now:            h.clock.Now,
		DecayRate:      0.05,
		MaxCatchUpDays: 7,
		DefaultUserID:  "u1",
	})
	return h
}

func jobNames(report *model.DailyCronReport) []model.JobName {
	var out []model.JobName
	for _, j := range report.Jobs {
		out = append(out, j.Job)
	}
	return out
}

func changesOfType(changes []model.Change, typ model.ChangeType) []model.Change {
	var out []model.Change
	for _, c := range changes {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// setAllRatings puts every dimension at rating
func setAllRatings(t *testing.T, h *harness, userID string, rating int) {
	t.Helper()
	_, _, err := h.progression.Mutate(context.Background(), userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		for _, d := range model.AllDimensions {
			st.Dimension(d).Rating = rating
		}
		st.OverallRating = rating
		return []model.Change{{Type: model.ChangeRatingChanged, UserID: userID, After: float64(rating), At: now}}, nil
	})
	require.NoError(t, err)
}

func rating(t *testing.T, h *harness, userID string, d model.Dimension) int {
	t.Helper()
	st, err := h.progression.State(context.Background(), userID)
	require.NoError(t, err)
	return st.Dimension(d).Rating
}

func TestRunForDate_RunsPipelineInOrder(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05", report.Date)
	assert.False(t, report.Skipped)
	assert.True(t, report.AllSucceeded)
	if diff := cmp.Diff(model.PipelineOrder, jobNames(report)); diff != "" {
		t.Errorf("job order mismatch (-want +got):\n%s", diff)
	}
	for _, j := range report.Jobs {
		assert.True(t, j.Success, "job %s: %s", j.Job, j.Error)
	}

	// a brand-new user has no activity yesterday: every dimension regresses
	regressed := changesOfType(report.Changes(), model.ChangeRatingRegressed)
	assert.Len(t, regressed, len(model.AllDimensions))
	assert.Equal(t, 1140, rating(t, h, "u1", model.DimensionCognitive))
	assert.Len(t, changesOfType(report.Changes(), model.ChangeSnapshotTaken), 1)

	ok, err := h.store.HasRun(ctx, "u1", "2026-03-05")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunForDate_SecondRunIsEmpty(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	_, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	before, err := h.progression.State(ctx, "u1")
	require.NoError(t, err)

	again, err := h.scheduler.RunNow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.True(t, again.IsEmpty())
	assert.Empty(t, again.Changes())

	after, err := h.progression.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.TotalXP, after.TotalXP)
	for _, d := range model.AllDimensions {
		assert.Equal(t, before.Dimension(d).Rating, after.Dimension(d).Rating, "dimension %s", d)
	}

	runs, err := h.scheduler.History(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunForDate_ChecksYesterdaysActivity(t *testing.T) {
	h := newHarness(t, dayOf(-1).Add(12*time.Hour))
	defer h.store.Close()
	ctx := context.Background()

	focus, err := h.progression.RecordActivity(ctx, "u1", &model.Activity{
		Type:       model.ActivityDeepWork,
		Metrics:    map[string]float64{model.MetricKeyDuration: 60, model.MetricKeyQuality: 4},
		OccurredAt: dayOf(-1).Add(9 * time.Hour),
	})
	require.NoError(t, err)
	_, err = h.progression.RecordActivity(ctx, "u1", &model.Activity{
		Type:       model.ActivitySleep,
		Metrics:    map[string]float64{model.MetricKeyHours: 8},
		OccurredAt: dayOf(-1).Add(7 * time.Hour),
	})
	require.NoError(t, err)

	h.clock.Set(today)
	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	require.True(t, report.AllSucceeded)

	// only the idle dimensions decay
	regressed := changesOfType(report.Changes(), model.ChangeRatingRegressed)
	assert.Len(t, regressed, len(model.AllDimensions)-2)
	for _, c := range regressed {
		require.NotNil(t, c.Dimension)
		assert.NotEqual(t, model.DimensionCognitive, *c.Dimension)
		assert.NotEqual(t, model.DimensionPhysiological, *c.Dimension)
	}
	assert.Empty(t, changesOfType(report.Changes(), model.ChangeStreakBroken))

	row, err := h.store.GetDailyAnalytics(ctx, "u1", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, 2, row.ActivityTotal)
	assert.Equal(t, 60.0, row.ActiveMinutes)
	assert.Equal(t, focus.XP.Awarded, row.XPByDimension[model.DimensionCognitive])
	assert.Equal(t, map[string]int{model.ActivityDeepWork: 1, model.ActivitySleep: 1}, row.ActivityCounts)

	metrics, err := h.store.ListDailyMetrics(ctx, "u1", "2026-03-04", "2026-03-04")
	require.NoError(t, err)
	byName := make(map[string]float64)
	for _, m := range metrics {
		byName[m.Metric] = m.Value
	}
	assert.Equal(t, map[string]float64{"sleep_hours": 8, "focus_minutes": 60, "focus_score": 4}, byName)

	snaps, err := h.store.ListSnapshots(ctx, "u1", "2026-03-05", "2026-03-05")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Dimensions, len(model.AllDimensions))
}

func TestRunForDate_BreaksMissedStreak(t *testing.T) {
	h := newHarness(t, dayOf(-2).Add(12*time.Hour))
	defer h.store.Close()
	ctx := context.Background()

	_, err := h.progression.RecordActivity(ctx, "u1", &model.Activity{
		Type:       model.ActivityJournal,
		OccurredAt: dayOf(-2).Add(8 * time.Hour),
	})
	require.NoError(t, err)

	// nothing on 03-04, so the 03-05 run breaks the journal streak
	h.clock.Set(today)
	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	broken := changesOfType(report.Changes(), model.ChangeStreakBroken)
	require.Len(t, broken, 1)
	assert.Equal(t, string(model.StreakJournal), broken[0].Subject)
}

func TestCatchUp_CompoundsMissedDays(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	setAllRatings(t, h, "u1", 1000)
	require.NoError(t, h.store.RecordRun(ctx, &model.RunHistoryEntry{ID: "seed", UserID: "u1", Date: "2026-03-02"}))

	reports, err := h.scheduler.CatchUp(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reports, 3)

	var dates []string
	for _, r := range reports {
		dates = append(dates, r.Date)
		assert.False(t, r.IsEmpty())
		assert.Len(t, changesOfType(r.Changes(), model.ChangeRatingRegressed), len(model.AllDimensions))
	}
	assert.Equal(t, []string{"2026-03-03", "2026-03-04", "2026-03-05"}, dates)

	// 1000 -> 950 -> 903 -> 858
	assert.Equal(t, 858, rating(t, h, "u1", model.DimensionCognitive))
	assert.Equal(t, 858, rating(t, h, "u1", model.DimensionReflection))

	again, err := h.scheduler.CatchUp(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCatchUp_CappedAtMaxDays(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	require.NoError(t, h.store.RecordRun(ctx, &model.RunHistoryEntry{ID: "seed", UserID: "u1", Date: "2026-02-13"}))

	reports, err := h.scheduler.CatchUp(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reports, 7)
	assert.Equal(t, "2026-02-27", reports[0].Date)
	assert.Equal(t, "2026-03-05", reports[6].Date)
}

func TestCatchUp_FirstRunIsTodayOnly(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()

	reports, err := h.scheduler.CatchUp(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "2026-03-05", reports[0].Date)
}

func TestRunForDate_FailingJobDoesNotAbort(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	h.scheduler.SetJob(model.JobBadgeCheck, func(ctx context.Context, run *Run) (int, []model.Change, error) {
		return 0, nil, errors.New("catalog offline")
	})
	h.scheduler.SetJob(model.JobAnalyticsAggregation, func(ctx context.Context, run *Run) (int, []model.Change, error) {
		panic("boom")
	})

	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	require.Len(t, report.Jobs, len(model.PipelineOrder))
	assert.False(t, report.AllSucceeded)

	for _, j := range report.Jobs {
		switch j.Job {
		case model.JobBadgeCheck:
			assert.False(t, j.Success)
			assert.Equal(t, "catalog offline", j.Error)
		case model.JobAnalyticsAggregation:
			assert.False(t, j.Success)
			assert.Contains(t, j.Error, "panic: boom")
		default:
			assert.True(t, j.Success, "job %s", j.Job)
		}
	}
	assert.Equal(t, []model.JobName{model.JobAnalyticsAggregation, model.JobBadgeCheck}, failedJobs(report))

	ok, err := h.store.HasRun(ctx, "u1", "2026-03-05")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunForDate_FailedRunIsNotRepeated(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	regressions := 0
	h.scheduler.SetJob(model.JobRatingRegression, func(ctx context.Context, run *Run) (int, []model.Change, error) {
		regressions++
		return 0, nil, nil
	})
	h.scheduler.SetJob(model.JobBadgeCheck, func(ctx context.Context, run *Run) (int, []model.Change, error) {
		return 0, nil, errors.New("catalog offline")
	})

	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	assert.False(t, report.AllSucceeded)

	again, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 1, regressions)

	entries, err := h.scheduler.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].AllSucceeded)
}

func TestRunForDate_CancelledRunLeavesNoLedgerEntry(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.SetJob(model.JobDimensionSnapshot, func(ctx context.Context, run *Run) (int, []model.Change, error) {
		cancel()
		return 0, nil, nil
	})

	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Len(t, report.Jobs, 3)

	ok, err := h.store.HasRun(context.Background(), "u1", "2026-03-05")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunForDate_PrunesOldLedgerEntries(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()
	ctx := context.Background()

	require.NoError(t, h.store.RecordRun(ctx, &model.RunHistoryEntry{ID: "old", UserID: "u1", Date: "2025-11-01"}))
	require.NoError(t, h.store.RecordRun(ctx, &model.RunHistoryEntry{ID: "recent", UserID: "u1", Date: "2026-02-01"}))

	report, err := h.scheduler.RunForDate(ctx, "u1", today)
	require.NoError(t, err)
	cleanup := report.Jobs[len(report.Jobs)-1]
	assert.Equal(t, model.JobCacheCleanup, cleanup.Job)
	assert.Equal(t, 1, cleanup.ItemsProcessed)

	runs, err := h.store.ListRuns(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunForDate_RequiresUser(t *testing.T) {
	h := newHarness(t, today)
	defer h.store.Close()

	_, err := h.scheduler.RunForDate(context.Background(), "", today)
	assert.ErrorIs(t, err, service.ErrUserIDRequired)
}
