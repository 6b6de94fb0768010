package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/model"
)

func newTestQueryService(env *testEnv) *QueryService {
	return NewQueryService(QueryServiceConfig{
		Progression: env.progression,
		Badges:      env.badges,
		Aggregator:  env.aggregator,
		Insights:    env.insights,
	})
}

func TestQuery_Unsupported(t *testing.T) {
	env := newTestEnv(testStart)
	q := newTestQueryService(env)

	_, err := q.Query(context.Background(), "u1", QueryType("horoscope"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedQuery)
	assert.ErrorIs(t, err, model.ErrNotFound)

	bad := model.Dimension("spiritual")
	_, err = q.Query(context.Background(), "u1", QueryLevelStatus, &bad)
	assert.ErrorIs(t, err, model.ErrUnknownDimension)
}

func TestQuery_EveryTypeAnswers(t *testing.T) {
	env := newTestEnv(day(10))
	logDeepWork(t, env, "u1")
	q := newTestQueryService(env)

	for _, typ := range QueryTypes {
		t.Run(string(typ), func(t *testing.T) {
			res, err := q.Query(context.Background(), "u1", typ, nil)
			require.NoError(t, err)
			assert.Equal(t, typ, res.Type)
		})
	}
}

func TestQuery_LevelStatus(t *testing.T) {
	env := newTestEnv(testStart)
	ctx := context.Background()
	_, err := env.progression.AwardXP(ctx, "u1", model.DimensionCognitive, 2000, "manual")
	require.NoError(t, err)
	q := newTestQueryService(env)

	res, err := q.Query(ctx, "u1", QueryLevelStatus, nil)
	require.NoError(t, err)
	ls := res.Data.(LevelStatus)
	assert.Equal(t, 7, ls.Level)
	assert.Equal(t, int64(2000), ls.TotalXP)
	assert.Equal(t, int64(262), ls.XPToNextLevel)

	dim := model.DimensionCreative
	res, err = q.Query(ctx, "u1", QueryLevelStatus, &dim)
	require.NoError(t, err)
	ls = res.Data.(LevelStatus)
	assert.Equal(t, 1, ls.Level)
	assert.Equal(t, int64(282), ls.XPToNextLevel)
}

func TestQuery_XPTodayAndBreakdown(t *testing.T) {
	env := newTestEnv(day(10))
	ctx := context.Background()
	_, err := env.progression.AwardXP(ctx, "u1", model.DimensionCognitive, 120, "manual")
	require.NoError(t, err)
	_, err = env.progression.AwardXP(ctx, "u1", model.DimensionReflection, 30, "bonus")
	require.NoError(t, err)
	q := newTestQueryService(env)

	res, err := q.Query(ctx, "u1", QueryXPToday, nil)
	require.NoError(t, err)
	today := res.Data.(*XPSummary)
	assert.Equal(t, int64(150), today.Total)
	assert.Equal(t, int64(120), today.ByDimension[model.DimensionCognitive])
	assert.Equal(t, int64(30), today.BySource["bonus"])

	env.clock.Set(day(11))
	res, err = q.Query(ctx, "u1", QueryXPToday, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Data.(*XPSummary).Total)

	dim := model.DimensionCognitive
	res, err = q.Query(ctx, "u1", QueryXPBreakdown, &dim)
	require.NoError(t, err)
	breakdown := res.Data.(*XPSummary)
	assert.Equal(t, int64(120), breakdown.Total)
	assert.Len(t, breakdown.Levels, 1)
	assert.NotContains(t, breakdown.ByDimension, model.DimensionReflection)
}

func TestQuery_Streaks(t *testing.T) {
	env := newTestEnv(day(10))
	ctx := context.Background()
	logDeepWork(t, env, "u1")
	_, err := env.progression.GrantFreeze(ctx, "u1", model.StreakJournal)
	require.NoError(t, err)
	q := newTestQueryService(env)

	res, err := q.Query(ctx, "u1", QueryStreakStatus, nil)
	require.NoError(t, err)
	status := res.Data.(*StreakStatus)
	require.Len(t, status.Streaks, 1)
	assert.Equal(t, 10, status.Streaks[0].CurrentCount)
	assert.Equal(t, 1.1, status.Multiplier)
	assert.Equal(t, 0, status.Weakest)

	res, err = q.Query(ctx, "u1", QueryAllStreaks, nil)
	require.NoError(t, err)
	assert.Len(t, res.Data.(*StreakStatus).Streaks, 2)
}

func TestQuery_BadgeProgressByDimension(t *testing.T) {
	env := newTestEnv(day(10))
	q := newTestQueryService(env)
	dim := model.DimensionCognitive

	res, err := q.Query(context.Background(), "u1", QueryBadgeProgress, &dim)
	require.NoError(t, err)
	list := res.Data.([]model.BadgeProgress)
	require.NotEmpty(t, list)
	for _, bp := range list {
		def, err := env.badges.Engine().Catalog().Get(bp.BadgeID)
		require.NoError(t, err)
		require.NotNil(t, def.Dimension)
		assert.Equal(t, dim, *def.Dimension)
	}
}

func seededHistory() *memHistoryRepo {
	h := newMemHistoryRepo()
	snap := func(user, date string, level int) *model.DimensionSnapshot {
		return &model.DimensionSnapshot{
			UserID: user,
			Date:   date,
			Dimensions: map[model.Dimension]model.DimensionStat{
				model.DimensionCognitive: {Level: level, TotalXP: int64(level) * 100, Rating: level * 10},
			},
		}
	}
	h.snapshots = []*model.DimensionSnapshot{
		snap("u1", "2026-03-11", 4),
		snap("u1", "2026-03-09", 3),
		snap("u1", "2026-01-01", 1),
		snap("u2", "2026-03-10", 9),
	}
	h.snapshots[0].Dimensions[model.DimensionCreative] = model.DimensionStat{Level: 2}

	h.analytics["u1/2026-03-05"] = &model.DailyAnalytics{UserID: "u1", Date: "2026-03-05", ActivityTotal: 2}
	h.analytics["u1/2026-03-10"] = &model.DailyAnalytics{UserID: "u1", Date: "2026-03-10", ActivityTotal: 5}
	h.analytics["u1/2026-02-01"] = &model.DailyAnalytics{UserID: "u1", Date: "2026-02-01", ActivityTotal: 9}

	h.metrics = []model.DailyMetric{
		{UserID: "u1", Date: "2026-03-10", Metric: "sleep_hours", Value: 6},
		{UserID: "u1", Date: "2026-03-09", Metric: "sleep_hours", Value: 8},
		{UserID: "u1", Date: "2026-03-11", Metric: "mood", Value: 4},
		{UserID: "u1", Date: "2026-01-15", Metric: "mood", Value: 1},
		{UserID: "u2", Date: "2026-03-11", Metric: "mood", Value: 2},
	}
	return h
}

func newHistoryQueryService(env *testEnv, h HistoryRepository) *QueryService {
	return NewQueryService(QueryServiceConfig{
		Progression: env.progression,
		Badges:      env.badges,
		Aggregator:  env.aggregator,
		Insights:    env.insights,
		History:     h,
	})
}

func TestQuery_DimensionHistory(t *testing.T) {
	env := newTestEnv(day(10))
	q := newHistoryQueryService(env, seededHistory())
	ctx := context.Background()

	res, err := q.Query(ctx, "u1", QueryDimensionHistory, nil)
	require.NoError(t, err)
	snaps := res.Data.([]*model.DimensionSnapshot)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-09", snaps[0].Date)
	assert.Equal(t, "2026-03-11", snaps[1].Date)

	dim := model.DimensionCognitive
	res, err = q.Query(ctx, "u1", QueryDimensionHistory, &dim)
	require.NoError(t, err)
	assert.Equal(t, []DimensionHistoryPoint{
		{Date: "2026-03-09", Level: 3, TotalXP: 300, Rating: 30},
		{Date: "2026-03-11", Level: 4, TotalXP: 400, Rating: 40},
	}, res.Data)

	dim = model.DimensionCreative
	res, err = q.Query(ctx, "u1", QueryDimensionHistory, &dim)
	require.NoError(t, err)
	points := res.Data.([]DimensionHistoryPoint)
	require.Len(t, points, 1)
	assert.Equal(t, "2026-03-11", points[0].Date)
}

func TestQuery_DailyAnalyticsSkipsMissingDays(t *testing.T) {
	env := newTestEnv(day(10))
	q := newHistoryQueryService(env, seededHistory())

	res, err := q.Query(context.Background(), "u1", QueryDailyAnalytics, nil)
	require.NoError(t, err)
	rows := res.Data.([]*model.DailyAnalytics)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-05", rows[0].Date)
	assert.Equal(t, 5, rows[1].ActivityTotal)
}

func TestQuery_MetricTrends(t *testing.T) {
	env := newTestEnv(day(10))
	q := newHistoryQueryService(env, seededHistory())

	res, err := q.Query(context.Background(), "u1", QueryMetricTrends, nil)
	require.NoError(t, err)
	trends := res.Data.([]MetricTrend)
	require.Len(t, trends, 2)

	assert.Equal(t, "mood", trends[0].Metric)
	assert.Len(t, trends[0].Points, 1)
	assert.Equal(t, 4.0, trends[0].Latest)

	sleep := trends[1]
	assert.Equal(t, "sleep_hours", sleep.Metric)
	assert.Equal(t, []MetricPoint{{Date: "2026-03-09", Value: 8}, {Date: "2026-03-10", Value: 6}}, sleep.Points)
	assert.Equal(t, 7.0, sleep.Mean)
	assert.Equal(t, 6.0, sleep.Latest)
}

func TestQueryService_Snapshots(t *testing.T) {
	env := newTestEnv(day(10))
	ctx := context.Background()
	q := newHistoryQueryService(env, seededHistory())

	snaps, err := q.Snapshots(ctx, "u1", "2026-01-01", "2026-03-10")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-01-01", snaps[0].Date)

	_, err = q.Snapshots(ctx, "", "2026-01-01", "2026-03-10")
	assert.ErrorIs(t, err, ErrUserIDRequired)

	snaps, err = newTestQueryService(env).Snapshots(ctx, "u1", "2026-01-01", "2026-03-10")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
