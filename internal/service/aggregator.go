package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forgo/progression/internal/model"
)

// Aggregator defaults
const (
	DefaultConfidenceFloor  = 0.3
	DefaultConfidenceTarget = 5
	harmonicEpsilon         = 0.01
)

// DimensionScore is the per-dimension input to the wellness index
type DimensionScore struct {
	Dimension  model.Dimension `json:"dimension"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
}

// StateReader reads a user's progression state
type StateReader interface {
	State(ctx context.Context, userID string) (*model.ProgressionState, error)
}

// DimensionAggregator combines the six dimension ratings into the wellness
// index using a confidence-filtered weighted harmonic mean
type DimensionAggregator struct {
	states           StateReader
	hub              *ChangeHub
	weights          map[model.Dimension]float64
	confidenceFloor  float64
	confidenceTarget int
	windowDays       int
	logger           *zap.Logger
	now              func() time.Time

	mu   sync.RWMutex
	last map[string]*model.WellnessIndex
}

// AggregatorConfig holds configuration for the dimension aggregator
type AggregatorConfig struct {
	States  StateReader
	Hub     *ChangeHub
	Weights map[model.Dimension]float64
	// ConfidenceFloor excludes dimensions below it from a computation
	ConfidenceFloor float64
	// ConfidenceTarget is the number of rating samples in the window for full confidence
	ConfidenceTarget int
	WindowDays       int
	Logger           *zap.Logger
	Now              func() time.Time
}

// NewDimensionAggregator creates a new dimension aggregator
func NewDimensionAggregator(cfg AggregatorConfig) *DimensionAggregator {
	a := &DimensionAggregator{
		states:           cfg.States,
		hub:              cfg.Hub,
		weights:          cfg.Weights,
		confidenceFloor:  cfg.ConfidenceFloor,
		confidenceTarget: cfg.ConfidenceTarget,
		windowDays:       cfg.WindowDays,
		logger:           cfg.Logger,
		now:              cfg.Now,
		last:             make(map[string]*model.WellnessIndex),
	}
	if a.weights == nil {
		a.weights = DefaultWeights()
	}
	if a.confidenceFloor <= 0 {
		a.confidenceFloor = DefaultConfidenceFloor
	}
	if a.confidenceTarget <= 0 {
		a.confidenceTarget = DefaultConfidenceTarget
	}
	if a.windowDays <= 0 {
		a.windowDays = model.DefaultRatingHistoryDays
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// ScoreForRating maps a rating in [MinRating, MaxRating] onto [0, 100]
func ScoreForRating(rating int) float64 {
	span := float64(model.MaxRating - model.MinRating)
	score := float64(ClampRating(rating)-model.MinRating) / span * 100
	return math.Max(0, math.Min(100, score))
}

// ConfidenceFor returns how much recent evidence backs a dimension's rating:
// the share of target rating samples recorded since cutoff, capped at 1
func ConfidenceFor(p *model.DimensionProgress, cutoff time.Time, target int) float64 {
	if p == nil || target <= 0 {
		return 0
	}
	samples := 0
	for _, e := range p.RatingHistory {
		if !e.Date.Before(cutoff) {
			samples++
		}
	}
	return math.Min(1, float64(samples)/float64(target))
}

// HarmonicMean returns Σw / Σ(w / max(score, ε)) over the given scores.
// It reports false when no score carries weight.
func HarmonicMean(scores []DimensionScore, weights map[model.Dimension]float64) (float64, bool) {
	var num, den float64
	for _, s := range scores {
		w := weights[s.Dimension]
		if w <= 0 {
			continue
		}
		num += w
		den += w / math.Max(s.Score, harmonicEpsilon)
	}
	if num == 0 || den == 0 {
		return 0, false
	}
	return num / den, true
}

// ScoreDimensions computes each dimension's score and confidence in parallel
func (a *DimensionAggregator) ScoreDimensions(ctx context.Context, st *model.ProgressionState, now time.Time) ([]DimensionScore, error) {
	cutoff := now.AddDate(0, 0, -a.windowDays)
	scores := make([]DimensionScore, len(model.AllDimensions))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range model.AllDimensions {
		p := st.Dimensions[d]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rating := model.DefaultRating
			if p != nil {
				rating = p.Rating
			}
			scores[i] = DimensionScore{
				Dimension:  d,
				Score:      ScoreForRating(rating),
				Confidence: ConfidenceFor(p, cutoff, a.confidenceTarget),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Compute recomputes and caches the wellness index for a user. Dimensions
// below the confidence floor are left out of the mean but keep their last
// known score; when none qualify the previous value is kept.
func (a *DimensionAggregator) Compute(ctx context.Context, userID string) (*model.WellnessIndex, error) {
	st, err := a.states.State(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load state for aggregation: %w", err)
	}
	now := a.now()
	scores, err := a.ScoreDimensions(ctx, st, now)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	prev := a.last[userID]
	next := combineScores(scores, a.weights, a.confidenceFloor, prev, now)
	a.last[userID] = next
	a.mu.Unlock()

	if prev != nil && prev.HasValue && next.HasValue && math.Abs(prev.Value-next.Value) >= 0.5 {
		a.hub.Publish(model.Change{
			Type:    model.ChangeWellnessIndex,
			UserID:  userID,
			Subject: string(next.Trend),
			Before:  prev.Value,
			After:   next.Value,
			Message: fmt.Sprintf("wellness index %.1f", next.Value),
			At:      now,
		})
	}
	a.logger.Debug("wellness index computed",
		zap.String("user_id", userID),
		zap.Float64("value", next.Value),
		zap.Int("included", len(next.Included)))
	return cloneIndex(next), nil
}

// Current returns the cached wellness index without recomputing
func (a *DimensionAggregator) Current(userID string) (*model.WellnessIndex, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.last[userID]
	if !ok {
		return nil, false
	}
	return cloneIndex(idx), true
}

// Users returns the ids with a cached index
func (a *DimensionAggregator) Users() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.last))
	for id := range a.last {
		ids = append(ids, id)
	}
	return ids
}

// combineScores merges dimension scores into the next index
func combineScores(scores []DimensionScore, weights map[model.Dimension]float64, floor float64, prev *model.WellnessIndex, now time.Time) *model.WellnessIndex {
	next := &model.WellnessIndex{
		Trend:      model.TrendStable,
		Scores:     make(map[model.Dimension]float64, len(scores)),
		Confidence: make(map[model.Dimension]float64, len(scores)),
		ComputedAt: now,
	}

	var included []DimensionScore
	for _, s := range scores {
		next.Confidence[s.Dimension] = s.Confidence
		if s.Confidence >= floor {
			included = append(included, s)
			next.Included = append(next.Included, s.Dimension)
			next.Scores[s.Dimension] = s.Score
			continue
		}
		if prev != nil {
			if last, ok := prev.Scores[s.Dimension]; ok {
				next.Scores[s.Dimension] = last
				continue
			}
		}
		next.Scores[s.Dimension] = s.Score
	}

	value, ok := HarmonicMean(included, weights)
	switch {
	case ok:
		next.Value = value
		next.HasValue = true
		if prev != nil && prev.HasValue {
			next.Trend = model.ClassifyTrend(value - prev.Value)
		}
	case prev != nil && prev.HasValue:
		next.Value = prev.Value
		next.HasValue = true
	}
	return next
}

func cloneIndex(idx *model.WellnessIndex) *model.WellnessIndex {
	c := *idx
	c.Included = append([]model.Dimension(nil), idx.Included...)
	c.Scores = make(map[model.Dimension]float64, len(idx.Scores))
	for d, v := range idx.Scores {
		c.Scores[d] = v
	}
	c.Confidence = make(map[model.Dimension]float64, len(idx.Confidence))
	for d, v := range idx.Confidence {
		c.Confidence[d] = v
	}
	return &c
}
