package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/forgo/progression/internal/model"
)

// QueryType names a level-system query
type QueryType string

const (
	QueryLevelStatus      QueryType = "levelStatus"
	QueryXPToday          QueryType = "xpToday"
	QueryXPBreakdown      QueryType = "xpBreakdown"
	QueryDimensionStatus  QueryType = "dimensionStatus"
	QueryStreakStatus     QueryType = "streakStatus"
	QueryAllStreaks       QueryType = "allStreaks"
	QueryBadgesEarned     QueryType = "badgesEarned"
	QueryBadgeProgress    QueryType = "badgeProgress"
	QueryWellnessIndex    QueryType = "wellnessIndex"
	QueryCorrelations     QueryType = "correlations"
	QueryDimensionHistory QueryType = "dimensionHistory"
	QueryDailyAnalytics   QueryType = "dailyAnalytics"
	QueryMetricTrends     QueryType = "metricTrends"
)

// Default look-back windows of the history queries, in days
const (
	DefaultHistoryDays   = 30
	DefaultAnalyticsDays = 7
)

// QueryTypes lists every supported query in display order
var QueryTypes = []QueryType{
	QueryLevelStatus,
	QueryXPToday,
	QueryXPBreakdown,
	QueryDimensionStatus,
	QueryStreakStatus,
	QueryAllStreaks,
	QueryBadgesEarned,
	QueryBadgeProgress,
	QueryWellnessIndex,
	QueryCorrelations,
	QueryDimensionHistory,
	QueryDailyAnalytics,
	QueryMetricTrends,
}

// QueryResult wraps the answer to one query
type QueryResult struct {
	Type      QueryType        `json:"type"`
	Dimension *model.Dimension `json:"dimension,omitempty"`
	Data      interface{}      `json:"data"`
}

// LevelStatus describes a level on the XP curve
type LevelStatus struct {
	Dimension     *model.Dimension `json:"dimension,omitempty"`
	Level         int              `json:"level"`
	TotalXP       int64            `json:"total_xp"`
	XPInLevel     int64            `json:"xp_in_level"`
	XPToNextLevel int64            `json:"xp_to_next_level"`
	Progress      float64          `json:"progress"`
}

// DimensionStatus describes one dimension
type DimensionStatus struct {
	Dimension model.Dimension `json:"dimension"`
	LevelStatus
	Rating      int         `json:"rating"`
	RatingTrend model.Trend `json:"rating_trend"`
}

// StreakStatus summarizes streaks and the XP multiplier they earn
type StreakStatus struct {
	Streaks    []*model.StreakRecord `json:"streaks"`
	Multiplier float64               `json:"multiplier"`
	Weakest    int                   `json:"weakest"`
}

// XPSummary totals XP awarded over a period
type XPSummary struct {
	From        time.Time                       `json:"from"`
	To          time.Time                       `json:"to"`
	Total       int64                           `json:"total"`
	ByDimension map[model.Dimension]int64       `json:"by_dimension"`
	BySource    map[string]int64                `json:"by_source,omitempty"`
	Levels      map[model.Dimension]LevelStatus `json:"levels,omitempty"`
}

// DimensionHistoryPoint is one dimension's snapshotted value on a date
type DimensionHistoryPoint struct {
	Date    string `json:"date"`
	Level   int    `json:"level"`
	TotalXP int64  `json:"total_xp"`
	Rating  int    `json:"rating"`
}

// MetricTrend is the persisted daily series of one extracted metric
type MetricTrend struct {
	Metric string        `json:"metric"`
	Points []MetricPoint `json:"points"`
	Mean   float64       `json:"mean"`
	Latest float64       `json:"latest"`
}

// MetricPoint is one day of a metric trend
type MetricPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// HistoryRepository reads the rows the daily pipeline writes. Date bounds
// are inclusive "2006-01-02" keys; empty means unbounded.
type HistoryRepository interface {
	ListSnapshots(ctx context.Context, userID, from, to string) ([]*model.DimensionSnapshot, error)
	// GetDailyAnalytics returns model.ErrNotFound for a day never aggregated
	GetDailyAnalytics(ctx context.Context, userID, date string) (*model.DailyAnalytics, error)
	ListDailyMetrics(ctx context.Context, userID, from, to string) ([]model.DailyMetric, error)
}

// QueryService answers read-only level-system queries
type QueryService struct {
	progression   *ProgressionService
	badges        *BadgeService
	aggregator    *DimensionAggregator
	insights      InsightRepository
	history       HistoryRepository
	historyDays   int
	analyticsDays int
}

// QueryServiceConfig holds configuration for the query service
type QueryServiceConfig struct {
	Progression *ProgressionService
	Badges      *BadgeService
	Aggregator  *DimensionAggregator
	Insights    InsightRepository
	// History is optional; without it the history queries answer empty
	History       HistoryRepository
	HistoryDays   int
	AnalyticsDays int
}

// NewQueryService creates a new query service
func NewQueryService(cfg QueryServiceConfig) *QueryService {
	s := &QueryService{
		progression:   cfg.Progression,
		badges:        cfg.Badges,
		aggregator:    cfg.Aggregator,
		insights:      cfg.Insights,
		history:       cfg.History,
		historyDays:   cfg.HistoryDays,
		analyticsDays: cfg.AnalyticsDays,
	}
	if s.historyDays <= 0 {
		s.historyDays = DefaultHistoryDays
	}
	if s.analyticsDays <= 0 {
		s.analyticsDays = DefaultAnalyticsDays
	}
	return s
}

// Query answers one query. dim narrows dimension-aware queries; nil means all.
func (s *QueryService) Query(ctx context.Context, userID string, q QueryType, dim *model.Dimension) (*QueryResult, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if dim != nil && !dim.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownDimension, *dim)
	}

	var (
		data interface{}
		err  error
	)
	switch q {
	case QueryLevelStatus:
		data, err = s.levelStatus(ctx, userID, dim)
	case QueryXPToday:
		data, err = s.xpToday(ctx, userID)
	case QueryXPBreakdown:
		data, err = s.xpBreakdown(ctx, userID, dim)
	case QueryDimensionStatus:
		data, err = s.dimensionStatus(ctx, userID, dim)
	case QueryStreakStatus:
		data, err = s.streakStatus(ctx, userID, true)
	case QueryAllStreaks:
		data, err = s.streakStatus(ctx, userID, false)
	case QueryBadgesEarned:
		data, err = s.badgesEarned(ctx, userID)
	case QueryBadgeProgress:
		data, err = s.badgeProgress(ctx, userID, dim)
	case QueryWellnessIndex:
		data, err = s.wellnessIndex(ctx, userID)
	case QueryCorrelations:
		data, err = s.correlations(ctx, userID)
	case QueryDimensionHistory:
		data, err = s.dimensionHistory(ctx, userID, dim)
	case QueryDailyAnalytics:
		data, err = s.dailyAnalytics(ctx, userID)
	case QueryMetricTrends:
		data, err = s.metricTrends(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedQuery, q)
	}
	if err != nil {
		return nil, err
	}
	return &QueryResult{Type: q, Dimension: dim, Data: data}, nil
}

func levelStatusFor(totalXP int64) LevelStatus {
	return LevelStatus{
		Level:         LevelForXP(totalXP),
		TotalXP:       totalXP,
		XPInLevel:     XPInLevel(totalXP),
		XPToNextLevel: XPToNextLevel(totalXP),
		Progress:      ProgressInLevel(totalXP),
	}
}

func (s *QueryService) levelStatus(ctx context.Context, userID string, dim *model.Dimension) (LevelStatus, error) {
	st, err := s.progression.State(ctx, userID)
	if err != nil {
		return LevelStatus{}, err
	}
	if dim != nil {
		ls := levelStatusFor(st.Dimension(*dim).TotalXP)
		ls.Dimension = dim
		return ls, nil
	}
	ls := levelStatusFor(st.TotalXP)
	// the index never drops, even if the total were corrected downwards
	if st.PermanentIndex > ls.Level {
		ls.Level = st.PermanentIndex
	}
	return ls, nil
}

func (s *QueryService) xpSummary(ctx context.Context, userID string, from, to time.Time) (*XPSummary, error) {
	changes, err := s.progression.Changes(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	sum := &XPSummary{
		From:        from,
		To:          to,
		ByDimension: XPByDimension(changes),
		BySource:    make(map[string]int64),
	}
	for _, c := range changes {
		if c.Type != model.ChangeXPAwarded {
			continue
		}
		if delta := int64(c.After - c.Before); delta > 0 {
			sum.BySource[c.Subject] += delta
		}
	}
	for _, xp := range sum.ByDimension {
		sum.Total += xp
	}
	return sum, nil
}

func (s *QueryService) xpToday(ctx context.Context, userID string) (*XPSummary, error) {
	from := model.StartOfDay(s.progression.Now(), s.progression.Location())
	return s.xpSummary(ctx, userID, from, from.AddDate(0, 0, 1))
}

// xpBreakdown totals XP over the rating history window with the current level of each dimension
func (s *QueryService) xpBreakdown(ctx context.Context, userID string, dim *model.Dimension) (*XPSummary, error) {
	st, err := s.progression.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	to := s.progression.Now()
	from := model.StartOfDay(to, s.progression.Location()).AddDate(0, 0, -s.progression.historyDays)
	sum, err := s.xpSummary(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	sum.Levels = make(map[model.Dimension]LevelStatus)
	for _, d := range model.AllDimensions {
		if dim != nil && d != *dim {
			delete(sum.ByDimension, d)
			continue
		}
		sum.Levels[d] = levelStatusFor(st.Dimension(d).TotalXP)
	}
	if dim != nil {
		sum.Total = sum.ByDimension[*dim]
		sum.BySource = nil
	}
	return sum, nil
}

func (s *QueryService) dimensionStatus(ctx context.Context, userID string, dim *model.Dimension) ([]DimensionStatus, error) {
	st, err := s.progression.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	dims := model.AllDimensions
	if dim != nil {
		dims = []model.Dimension{*dim}
	}
	out := make([]DimensionStatus, 0, len(dims))
	for _, d := range dims {
		p := st.Dimension(d)
		out = append(out, DimensionStatus{
			Dimension:   d,
			LevelStatus: levelStatusFor(p.TotalXP),
			Rating:      p.Rating,
			RatingTrend: RatingTrend(p.RatingHistory),
		})
	}
	return out, nil
}

// streakStatus lists streaks; activeOnly drops streaks that are not running
func (s *QueryService) streakStatus(ctx context.Context, userID string, activeOnly bool) (*StreakStatus, error) {
	st, err := s.progression.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	tracker := NewStreakTracker(st.Streaks, s.progression.Location())
	out := &StreakStatus{
		Streaks:    []*model.StreakRecord{},
		Multiplier: tracker.TotalMultiplier(),
		Weakest:    tracker.Weakest(),
	}
	for _, typ := range tracker.Types() {
		rec := tracker.Get(typ)
		if activeOnly && !rec.IsActive {
			continue
		}
		out.Streaks = append(out.Streaks, rec)
	}
	return out, nil
}

func (s *QueryService) badgesEarned(ctx context.Context, userID string) ([]*model.BadgeUnlock, error) {
	unlocks, err := s.badges.Earned(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(unlocks, func(i, j int) bool {
		return unlocks[i].UnlockedAt.Before(unlocks[j].UnlockedAt)
	})
	return unlocks, nil
}

func (s *QueryService) badgeProgress(ctx context.Context, userID string, dim *model.Dimension) ([]model.BadgeProgress, error) {
	all, err := s.badges.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if dim == nil {
		return all, nil
	}
	out := make([]model.BadgeProgress, 0, len(all))
	for _, bp := range all {
		def, err := s.badges.Engine().Catalog().Get(bp.BadgeID)
		if err != nil {
			continue
		}
		if def.Dimension != nil && *def.Dimension == *dim {
			out = append(out, bp)
		}
	}
	return out, nil
}

func (s *QueryService) wellnessIndex(ctx context.Context, userID string) (*model.WellnessIndex, error) {
	if idx, ok := s.aggregator.Current(userID); ok {
		return idx, nil
	}
	return s.aggregator.Compute(ctx, userID)
}

func (s *QueryService) correlations(ctx context.Context, userID string) ([]*model.CorrelationInsight, error) {
	insights, err := s.insights.ListInsights(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].MetricA != insights[j].MetricA {
			return insights[i].MetricA < insights[j].MetricA
		}
		return insights[i].MetricB < insights[j].MetricB
	})
	return insights, nil
}

// Location is the time zone date keys are computed in
func (s *QueryService) Location() *time.Location { return s.progression.Location() }

// Now is the current time of the progression clock
func (s *QueryService) Now() time.Time { return s.progression.Now() }

// window returns the date keys of the last days calendar days, today included
func (s *QueryService) window(days int) (string, string) {
	loc := s.Location()
	today := model.StartOfDay(s.Now(), loc)
	return model.DateKey(today.AddDate(0, 0, -(days-1)), loc), model.DateKey(today, loc)
}

// Snapshots lists the stored dimension snapshots with dates in [from, to]
func (s *QueryService) Snapshots(ctx context.Context, userID, from, to string) ([]*model.DimensionSnapshot, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if s.history == nil {
		return nil, nil
	}
	snaps, err := s.history.ListSnapshots(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date < snaps[j].Date })
	return snaps, nil
}

// dimensionHistory returns the snapshots of the history window, or the
// series of one dimension when dim is set
func (s *QueryService) dimensionHistory(ctx context.Context, userID string, dim *model.Dimension) (interface{}, error) {
	from, to := s.window(s.historyDays)
	snaps, err := s.Snapshots(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if dim == nil {
		if snaps == nil {
			snaps = []*model.DimensionSnapshot{}
		}
		return snaps, nil
	}
	points := make([]DimensionHistoryPoint, 0, len(snaps))
	for _, snap := range snaps {
		stat, ok := snap.Dimensions[*dim]
		if !ok {
			continue
		}
		points = append(points, DimensionHistoryPoint{
			Date:    snap.Date,
			Level:   stat.Level,
			TotalXP: stat.TotalXP,
			Rating:  stat.Rating,
		})
	}
	return points, nil
}

// dailyAnalytics returns the aggregated days of the analytics window,
// oldest first. Days never aggregated are left out.
func (s *QueryService) dailyAnalytics(ctx context.Context, userID string) ([]*model.DailyAnalytics, error) {
	out := []*model.DailyAnalytics{}
	if s.history == nil {
		return out, nil
	}
	loc := s.Location()
	today := model.StartOfDay(s.Now(), loc)
	for i := s.analyticsDays - 1; i >= 0; i-- {
		key := model.DateKey(today.AddDate(0, 0, -i), loc)
		row, err := s.history.GetDailyAnalytics(ctx, userID, key)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("daily analytics %s: %w", key, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// metricTrends groups the persisted daily metrics of the history window by name
func (s *QueryService) metricTrends(ctx context.Context, userID string) ([]MetricTrend, error) {
	out := []MetricTrend{}
	if s.history == nil {
		return out, nil
	}
	from, to := s.window(s.historyDays)
	rows, err := s.history.ListDailyMetrics(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}

	byMetric := make(map[string][]MetricPoint)
	for _, m := range rows {
		byMetric[m.Metric] = append(byMetric[m.Metric], MetricPoint{Date: m.Date, Value: m.Value})
	}
	for name, points := range byMetric {
		sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
		var sum float64
		for _, p := range points {
			sum += p.Value
		}
		out = append(out, MetricTrend{
			Metric: name,
			Points: points,
			Mean:   sum / float64(len(points)),
			Latest: points[len(points)-1].Value,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}
