package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgo/progression/internal/model"
)

// Correlation defaults
const (
	DefaultCorrelationWindowDays = 90
	DefaultCorrelationMinSamples = 10
	DefaultCorrelationThreshold  = 0.5
)

// ErrZeroVariance indicates a series that never changes, for which correlation is undefined
var ErrZeroVariance = fmt.Errorf("zero variance: %w", model.ErrInsufficientSamples)

// Aggregation folds one day's samples of a metric into a single value
type Aggregation string

const (
	AggregateMean Aggregation = "mean"
	AggregateSum  Aggregation = "sum"
)

// ExtractionRule maps an activity type onto a named daily metric. An empty
// Source counts occurrences.
type ExtractionRule struct {
	ActivityType string
	Metric       string
	Source       string
	Aggregate    Aggregation
}

// DefaultExtractionRules is the fixed extraction table per activity type.
// Durations, counts and word totals sum over the day; the rest average.
var DefaultExtractionRules = []ExtractionRule{
	{ActivityType: model.ActivitySleep, Metric: "sleep_hours", Source: model.MetricKeyHours, Aggregate: AggregateMean},
	{ActivityType: model.ActivitySleep, Metric: "sleep_quality", Source: model.MetricKeyQuality, Aggregate: AggregateMean},
	{ActivityType: model.ActivityDeepWork, Metric: "focus_minutes", Source: model.MetricKeyDuration, Aggregate: AggregateSum},
	{ActivityType: model.ActivityDeepWork, Metric: "focus_score", Source: model.MetricKeyQuality, Aggregate: AggregateMean},
	{ActivityType: model.ActivityTask, Metric: "tasks_completed", Aggregate: AggregateSum},
	{ActivityType: model.ActivityWorkout, Metric: "workout_minutes", Source: model.MetricKeyDuration, Aggregate: AggregateSum},
	{ActivityType: model.ActivityWorkout, Metric: "hrv", Source: model.MetricKeyHRV, Aggregate: AggregateMean},
	{ActivityType: model.ActivityJournal, Metric: "mood", Source: model.MetricKeyMood, Aggregate: AggregateMean},
	{ActivityType: model.ActivityJournal, Metric: "energy", Source: model.MetricKeyEnergy, Aggregate: AggregateMean},
	{ActivityType: model.ActivityWriting, Metric: "words_written", Source: model.MetricKeyWords, Aggregate: AggregateSum},
	{ActivityType: model.ActivityMeditation, Metric: "meditation_minutes", Source: model.MetricKeyDuration, Aggregate: AggregateSum},
}

// DailySeries holds metric -> date key -> aggregated value
type DailySeries map[string]map[string]float64

type dailyAcc struct {
	sum float64
	n   int
	agg Aggregation
}

// ExtractDailyMetrics applies rules to activities and aggregates the samples
// per metric and calendar day. A rule emits only when its source metric is present.
func ExtractDailyMetrics(userID string, activities []*model.Activity, rules []ExtractionRule, loc *time.Location) []model.DailyMetric {
	byType := make(map[string][]ExtractionRule)
	for _, r := range rules {
		byType[r.ActivityType] = append(byType[r.ActivityType], r)
	}

	acc := make(map[string]map[string]*dailyAcc)
	for _, a := range activities {
		if a == nil {
			continue
		}
		for _, r := range byType[a.Type] {
			v := 1.0
			if r.Source != "" {
				var ok bool
				if v, ok = a.Metric(r.Source); !ok {
					continue
				}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			key := model.DateKey(a.OccurredAt, loc)
			days, ok := acc[r.Metric]
			if !ok {
				days = make(map[string]*dailyAcc)
				acc[r.Metric] = days
			}
			d, ok := days[key]
			if !ok {
				d = &dailyAcc{agg: r.Aggregate}
				days[key] = d
			}
			d.sum += v
			d.n++
		}
	}

	var out []model.DailyMetric
	for metric, days := range acc {
		for date, d := range days {
			value := d.sum
			if d.agg != AggregateSum {
				value = d.sum / float64(d.n)
			}
			out = append(out, model.DailyMetric{
				UserID:  userID,
				Date:    date,
				Metric:  metric,
				Value:   value,
				Samples: d.n,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metric != out[j].Metric {
			return out[i].Metric < out[j].Metric
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// SeriesFromMetrics indexes daily metrics by metric and date
func SeriesFromMetrics(metrics []model.DailyMetric) DailySeries {
	series := make(DailySeries)
	for _, m := range metrics {
		days, ok := series[m.Metric]
		if !ok {
			days = make(map[string]float64)
			series[m.Metric] = days
		}
		days[m.Date] = m.Value
	}
	return series
}

// Pearson returns the Pearson correlation coefficient of two equal-length series
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("series length mismatch %d != %d", len(x), len(y))
	}
	n := float64(len(x))
	if len(x) < 2 {
		return 0, model.ErrInsufficientSamples
	}

	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var cov, varX, varY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, ErrZeroVariance
	}
	r := cov / math.Sqrt(varX*varY)
	return math.Max(-1, math.Min(1, r)), nil
}

// pairedValues returns values of both metrics on days where both were observed
func pairedValues(a, b map[string]float64) ([]float64, []float64) {
	days := make([]string, 0, len(a))
	for day := range a {
		if _, ok := b[day]; ok {
			days = append(days, day)
		}
	}
	sort.Strings(days)
	x := make([]float64, len(days))
	y := make([]float64, len(days))
	for i, day := range days {
		x[i] = a[day]
		y[i] = b[day]
	}
	return x, y
}

// InsightRepository defines the interface for correlation insight storage
type InsightRepository interface {
	ListInsights(ctx context.Context, userID string) ([]*model.CorrelationInsight, error)
	// SaveInsight inserts or updates an insight by id
	SaveInsight(ctx context.Context, insight *model.CorrelationInsight) error
}

// CorrelationResult summarizes one analysis run
type CorrelationResult struct {
	Metrics        int                         `json:"metrics"`
	PairsEvaluated int                         `json:"pairs_evaluated"`
	PairsSkipped   int                         `json:"pairs_skipped"`
	Discovered     []*model.CorrelationInsight `json:"discovered,omitempty"`
	Revalidated    []*model.CorrelationInsight `json:"revalidated,omitempty"`
	Changes        []model.Change              `json:"changes,omitempty"`
}

// CorrelationAnalyzer flags co-movement between daily metrics over a
// rolling window. It describes association only.
type CorrelationAnalyzer struct {
	activities ActivityRepository
	insights   InsightRepository
	hub        *ChangeHub
	rules      []ExtractionRule
	windowDays int
	minSamples int
	threshold  float64
	loc        *time.Location
	logger     *zap.Logger
}

// CorrelationAnalyzerConfig holds configuration for the correlation analyzer
type CorrelationAnalyzerConfig struct {
	Activities ActivityRepository
	Insights   InsightRepository
	Hub        *ChangeHub
	Rules      []ExtractionRule
	WindowDays int
	MinSamples int
	Threshold  float64
	Location   *time.Location
	Logger     *zap.Logger
}

// NewCorrelationAnalyzer creates a new correlation analyzer
func NewCorrelationAnalyzer(cfg CorrelationAnalyzerConfig) *CorrelationAnalyzer {
	a := &CorrelationAnalyzer{
		activities: cfg.Activities,
		insights:   cfg.Insights,
		hub:        cfg.Hub,
		rules:      cfg.Rules,
		windowDays: cfg.WindowDays,
		minSamples: cfg.MinSamples,
		threshold:  cfg.Threshold,
		loc:        cfg.Location,
		logger:     cfg.Logger,
	}
	if a.rules == nil {
		a.rules = DefaultExtractionRules
	}
	if a.windowDays <= 0 {
		a.windowDays = DefaultCorrelationWindowDays
	}
	if a.minSamples <= 0 {
		a.minSamples = DefaultCorrelationMinSamples
	}
	if a.threshold <= 0 {
		a.threshold = DefaultCorrelationThreshold
	}
	if a.loc == nil {
		a.loc = time.UTC
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Rules returns the extraction rules in use
func (a *CorrelationAnalyzer) Rules() []ExtractionRule {
	return a.rules
}

// Analyze correlates every metric pair over the window ending before asOf.
// Pairs with fewer overlapping days than the minimum, or with a constant
// series, are skipped. Strong pairs become insights; a pair seen before is
// revalidated instead of duplicated.
func (a *CorrelationAnalyzer) Analyze(ctx context.Context, userID string, asOf time.Time) (*CorrelationResult, error) {
	to := model.StartOfDay(asOf, a.loc)
	from := to.AddDate(0, 0, -a.windowDays)
	activities, err := a.activities.ListActivities(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list activities for correlation: %w", err)
	}
	existing, err := a.insights.ListInsights(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	known := make(map[[2]string]*model.CorrelationInsight, len(existing))
	for _, in := range existing {
		if in == nil {
			continue
		}
		known[pairKey(in.MetricA, in.MetricB)] = in
	}

	series := SeriesFromMetrics(ExtractDailyMetrics(userID, activities, a.rules, a.loc))
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &CorrelationResult{Metrics: len(names)}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			x, y := pairedValues(series[names[i]], series[names[j]])
			if len(x) < a.minSamples {
				result.PairsSkipped++
				continue
			}
			r, err := Pearson(x, y)
			if err != nil {
				if !errors.Is(err, model.ErrInsufficientSamples) {
					return result, err
				}
				result.PairsSkipped++
				continue
			}
			result.PairsEvaluated++
			if math.Abs(r) < a.threshold {
				continue
			}
			if err := a.record(ctx, userID, names[i], names[j], r, len(x), asOf, known, result); err != nil {
				return result, err
			}
		}
	}

	a.hub.Publish(result.Changes...)
	a.logger.Info("correlation analysis complete",
		zap.String("user_id", userID),
		zap.Int("metrics", result.Metrics),
		zap.Int("pairs", result.PairsEvaluated),
		zap.Int("discovered", len(result.Discovered)),
		zap.Int("revalidated", len(result.Revalidated)))
	return result, nil
}

// record creates or revalidates the insight for a strong pair
func (a *CorrelationAnalyzer) record(ctx context.Context, userID, metricA, metricB string, r float64, n int, at time.Time, known map[[2]string]*model.CorrelationInsight, result *CorrelationResult) error {
	direction := model.CorrelationPositive
	if r < 0 {
		direction = model.CorrelationNegative
	}
	key := pairKey(metricA, metricB)

	if in, ok := known[key]; ok {
		before := in.Coefficient
		in.Coefficient = r
		in.Direction = direction
		in.SampleSize = n
		in.ValidationCount++
		in.LastValidatedAt = at
		if err := a.insights.SaveInsight(ctx, in); err != nil {
			return fmt.Errorf("save insight: %w", err)
		}
		result.Revalidated = append(result.Revalidated, in)
		result.Changes = append(result.Changes, model.Change{
			Type:    model.ChangeInsightRevalidated,
			UserID:  userID,
			Subject: key[0] + "~" + key[1],
			Before:  before,
			After:   r,
			Message: fmt.Sprintf("%s and %s still move together (r=%.2f, seen %d times)", key[0], key[1], r, in.ValidationCount),
			At:      at,
		})
		return nil
	}

	in := &model.CorrelationInsight{
		ID:              uuid.NewString(),
		UserID:          userID,
		MetricA:         key[0],
		MetricB:         key[1],
		Coefficient:     r,
		Direction:       direction,
		SampleSize:      n,
		ValidationCount: 1,
		FirstSeenAt:     at,
		LastValidatedAt: at,
	}
	if err := a.insights.SaveInsight(ctx, in); err != nil {
		return fmt.Errorf("save insight: %w", err)
	}
	known[key] = in
	result.Discovered = append(result.Discovered, in)
	result.Changes = append(result.Changes, model.Change{
		Type:    model.ChangeInsightDiscovered,
		UserID:  userID,
		Subject: key[0] + "~" + key[1],
		After:   r,
		Message: fmt.Sprintf("%s and %s show a %s correlation (r=%.2f over %d days)", key[0], key[1], direction, r, n),
		At:      at,
	})
	return nil
}

// pairKey orders a metric pair alphabetically
func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
