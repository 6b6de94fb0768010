package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/jobs"
	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

var (
	_ service.StateRepository       = (*Store)(nil)
	_ service.ActivityRepository    = (*Store)(nil)
	_ service.ChangeLogRepository   = (*Store)(nil)
	_ service.BadgeUnlockRepository = (*Store)(nil)
	_ service.InsightRepository     = (*Store)(nil)
	_ jobs.RunHistoryRepository     = (*Store)(nil)
	_ jobs.SnapshotRepository       = (*Store)(nil)
	_ jobs.AnalyticsRepository      = (*Store)(nil)
	_ jobs.MetricRepository         = (*Store)(nil)
	_ jobs.UserSource               = (*Store)(nil)
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestState_RoundTripAndVersionGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetState(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	st := model.NewProgressionState("u1", base)
	st.TotalXP = 500
	st.Version = 2
	require.NoError(t, store.SaveState(ctx, st))

	got, err := store.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.TotalXP)
	assert.Equal(t, int64(2), got.Version)

	stale := st.Clone()
	stale.Version = 1
	stale.TotalXP = 10
	require.NoError(t, store.SaveState(ctx, stale))

	got, err = store.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.TotalXP, "older version must not overwrite")

	ids, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestState_ChecksumMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveState(ctx, model.NewProgressionState("u1", base)))

	err := store.DB().Model(&stateRecord{}).Where("user_id = ?", "u1").
		Update("checksum", "deadbeef").Error
	require.NoError(t, err)

	_, err = store.GetState(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrDataIntegrity)
}

func TestActivities_RangeAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cog := model.DimensionPtr(model.DimensionCognitive)

	for i, at := range []time.Time{base.Add(48 * time.Hour), base, base.Add(24 * time.Hour)} {
		require.NoError(t, store.AppendActivity(ctx, &model.Activity{
			ID: string(rune('a' + i)), UserID: "u1", Type: model.ActivityDeepWork, Dimension: cog,
			Metrics: map[string]float64{model.MetricKeyDuration: float64(30 * (i + 1))}, OccurredAt: at,
		}))
	}
	// duplicate id is ignored
	require.NoError(t, store.AppendActivity(ctx, &model.Activity{
		ID: "a", UserID: "u1", Type: model.ActivityTask, OccurredAt: base,
	}))

	all, err := store.ListActivities(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.Equal(t, 30.0, all[2].DurationMinutes())
	assert.Equal(t, model.DimensionCognitive, *all[0].Dimension)

	window, err := store.ListActivities(ctx, "u1", base.Add(24*time.Hour), base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "c", window[0].ID)
}

func TestChangeLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cog := model.DimensionPtr(model.DimensionCognitive)

	require.NoError(t, store.AppendChanges(ctx, []model.Change{
		{Type: model.ChangeXPAwarded, UserID: "u1", Dimension: cog, Before: 0, After: 50, At: base},
		{Type: model.ChangeStreakBroken, UserID: "u1", Subject: "journal", Before: 4, At: base.Add(time.Hour)},
		{Type: model.ChangeXPAwarded, UserID: "u2", Dimension: cog, After: 10, At: base},
	}))

	changes, err := store.ListChanges(ctx, "u1", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, model.ChangeXPAwarded, changes[0].Type)
	assert.Equal(t, 50.0, changes[0].After)
	assert.Equal(t, "journal", changes[1].Subject)
	assert.Nil(t, changes[1].Dimension)
	assert.Equal(t, map[model.Dimension]int64{model.DimensionCognitive: 50}, service.XPByDimension(changes))
}

func TestUnlocks_OncePerBadge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.RecordUnlock(ctx, &model.BadgeUnlock{UserID: "u1", BadgeID: "first_steps", Tier: model.TierBronze, XPAwarded: 50, UnlockedAt: base})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.RecordUnlock(ctx, &model.BadgeUnlock{UserID: "u1", BadgeID: "first_steps", Tier: model.TierBronze, UnlockedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)

	list, err := store.ListUnlocks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(50), list[0].XPAwarded)
	assert.True(t, list[0].UnlockedAt.Equal(base))
}

func TestRunHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LastRun(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	for _, d := range []string{"2026-03-01", "2026-03-03", "2026-03-02"} {
		require.NoError(t, store.RecordRun(ctx, &model.RunHistoryEntry{ID: "r" + d, UserID: "u1", Date: d, JobCount: 9}))
	}
	require.NoError(t, store.RecordRun(ctx, &model.RunHistoryEntry{ID: "dup", UserID: "u1", Date: "2026-03-01"}))

	ok, err := store.HasRun(ctx, "u1", "2026-03-02")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.HasRun(ctx, "u2", "2026-03-02")
	require.NoError(t, err)
	assert.False(t, ok)

	last, err := store.LastRun(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", last.Date)

	n, err := store.DeleteRunsBefore(ctx, "u1", "2026-03-03")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := store.ListRuns(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 9, runs[0].JobCount)
}

func TestSnapshotsAnalyticsMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	wellness := 61.5

	snap := &model.DimensionSnapshot{
		UserID: "u1", Date: "2026-03-02", PermanentIndex: 3, OverallRating: 1210, WellnessIndex: &wellness,
		Dimensions: map[model.Dimension]model.DimensionStat{model.DimensionCognitive: {Level: 3, XP: 20, TotalXP: 300, Rating: 1230}},
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	snap.OverallRating = 1190
	snap.ID = ""
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	snaps, err := store.ListSnapshots(ctx, "u1", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1190, snaps[0].OverallRating)
	require.NotNil(t, snaps[0].WellnessIndex)
	assert.Equal(t, 61.5, *snaps[0].WellnessIndex)
	assert.Equal(t, 1230, snaps[0].Dimensions[model.DimensionCognitive].Rating)

	row := &model.DailyAnalytics{
		UserID: "u1", Date: "2026-03-01",
		XPByDimension:  map[model.Dimension]int64{model.DimensionCognitive: 80},
		ActivityCounts: map[string]int{model.ActivityDeepWork: 1},
		ActiveMinutes:  60, ActivityTotal: 1,
	}
	require.NoError(t, store.UpsertDailyAnalytics(ctx, row))
	row.ActivityTotal = 2
	require.NoError(t, store.UpsertDailyAnalytics(ctx, row))
	got, err := store.GetDailyAnalytics(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ActivityTotal)
	assert.Equal(t, int64(80), got.XPByDimension[model.DimensionCognitive])

	require.NoError(t, store.UpsertDailyMetrics(ctx, []model.DailyMetric{
		{UserID: "u1", Date: "2026-03-01", Metric: "sleep_hours", Value: 7, Samples: 1},
		{UserID: "u1", Date: "2026-03-01", Metric: "focus_minutes", Value: 60, Samples: 1},
	}))
	require.NoError(t, store.UpsertDailyMetrics(ctx, []model.DailyMetric{
		{UserID: "u1", Date: "2026-03-01", Metric: "sleep_hours", Value: 8, Samples: 2},
	}))
	metrics, err := store.ListDailyMetrics(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "focus_minutes", metrics[0].Metric)
	assert.Equal(t, 8.0, metrics[1].Value)
}

func TestInsights_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &model.CorrelationInsight{
		ID: "i1", UserID: "u1", MetricA: "focus_minutes", MetricB: "sleep_hours",
		Coefficient: 0.8, Direction: model.CorrelationPositive, SampleSize: 30, ValidationCount: 1,
		FirstSeenAt: base, LastValidatedAt: base,
	}
	require.NoError(t, store.SaveInsight(ctx, in))
	in.ValidationCount = 2
	require.NoError(t, store.SaveInsight(ctx, in))

	list, err := store.ListInsights(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ValidationCount)
	assert.Equal(t, model.CorrelationPositive, list[0].Direction)
}
