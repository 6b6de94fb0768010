package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/model"
)

// staticStates serves fixed states to the aggregator
type staticStates struct {
	mu     sync.Mutex
	states map[string]*model.ProgressionState
}

func (s *staticStates) State(ctx context.Context, userID string) (*model.ProgressionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *staticStates) set(st *model.ProgressionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.UserID] = st
}

func equalWeights() map[model.Dimension]float64 {
	w := make(map[model.Dimension]float64, len(model.AllDimensions))
	for _, d := range model.AllDimensions {
		w[d] = 1.0 / 6
	}
	return w
}

// ratingForScore inverts ScoreForRating
func ratingForScore(score float64) int {
	return model.MinRating + int(score/100*float64(model.MaxRating-model.MinRating))
}

// stateWithScores builds a state whose dimensions score as given, each with
// samples rating history entries inside the window
func stateWithScores(userID string, now time.Time, scores map[model.Dimension]float64, samples map[model.Dimension]int) *model.ProgressionState {
	st := model.NewProgressionState(userID, now)
	for d, score := range scores {
		p := st.Dimension(d)
		p.Rating = ratingForScore(score)
		for i := 0; i < samples[d]; i++ {
			p.RatingHistory = append(p.RatingHistory, model.RatingHistoryEntry{
				Date:   now.Add(-time.Duration(i+1) * time.Hour),
				Rating: p.Rating,
				Delta:  1,
				Cause:  "test",
			})
		}
	}
	return st
}

func allSamples(n int) map[model.Dimension]int {
	out := make(map[model.Dimension]int)
	for _, d := range model.AllDimensions {
		out[d] = n
	}
	return out
}

func lopsidedScores() map[model.Dimension]float64 {
	return map[model.Dimension]float64{
		model.DimensionCognitive:     90,
		model.DimensionCreative:      90,
		model.DimensionPhysiological: 90,
		model.DimensionBehavioral:    90,
		model.DimensionKnowledge:     90,
		model.DimensionReflection:    10,
	}
}

func newTestAggregator(states StateReader, hub *ChangeHub, now time.Time) *DimensionAggregator {
	return NewDimensionAggregator(AggregatorConfig{
		States:  states,
		Hub:     hub,
		Weights: equalWeights(),
		Now:     func() time.Time { return now },
	})
}

func TestScoreForRating(t *testing.T) {
	assert.Equal(t, 0.0, ScoreForRating(model.MinRating))
	assert.Equal(t, 100.0, ScoreForRating(model.MaxRating))
	assert.Equal(t, 25.0, ScoreForRating(model.DefaultRating))
	assert.Equal(t, 0.0, ScoreForRating(100))
	assert.Equal(t, 100.0, ScoreForRating(5000))
}

func TestConfidenceFor(t *testing.T) {
	now := testStart
	p := &model.DimensionProgress{RatingHistory: []model.RatingHistoryEntry{
		{Date: now.AddDate(0, 0, -40)},
		{Date: now.AddDate(0, 0, -2)},
		{Date: now.AddDate(0, 0, -1)},
	}}
	cutoff := now.AddDate(0, 0, -30)
	assert.InDelta(t, 0.4, ConfidenceFor(p, cutoff, 5), 1e-9)
	assert.Equal(t, 1.0, ConfidenceFor(p, cutoff, 2))
	assert.Equal(t, 0.0, ConfidenceFor(nil, cutoff, 5))
}

func TestHarmonicMean_PenalizesWeakDimension(t *testing.T) {
	var scores []DimensionScore
	var arithmetic float64
	for d, s := range lopsidedScores() {
		scores = append(scores, DimensionScore{Dimension: d, Score: s, Confidence: 1})
		arithmetic += s / 6
	}

	h, ok := HarmonicMean(scores, equalWeights())
	require.True(t, ok)
	assert.InDelta(t, 38.57, h, 0.01)
	assert.InDelta(t, 76.67, arithmetic, 0.01)
	assert.Less(t, h, arithmetic)
}

func TestHarmonicMean_ZeroScoreUsesEpsilon(t *testing.T) {
	scores := []DimensionScore{
		{Dimension: model.DimensionCognitive, Score: 0},
		{Dimension: model.DimensionCreative, Score: 100},
	}
	h, ok := HarmonicMean(scores, equalWeights())
	require.True(t, ok)
	assert.Greater(t, h, 0.0)
	assert.Less(t, h, 0.03)
}

func TestHarmonicMean_NoWeight(t *testing.T) {
	_, ok := HarmonicMean(nil, equalWeights())
	assert.False(t, ok)

	_, ok = HarmonicMean([]DimensionScore{{Dimension: model.DimensionCognitive, Score: 50}}, map[model.Dimension]float64{})
	assert.False(t, ok)
}

func TestAggregator_Compute(t *testing.T) {
	states := &staticStates{states: make(map[string]*model.ProgressionState)}
	states.set(stateWithScores("u1", testStart, lopsidedScores(), allSamples(3)))
	agg := newTestAggregator(states, nil, testStart)

	idx, err := agg.Compute(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, idx.HasValue)
	assert.Len(t, idx.Included, 6)
	assert.InDelta(t, 38.57, idx.Value, 0.05)
	assert.Equal(t, model.TrendStable, idx.Trend)

	cached, ok := agg.Current("u1")
	require.True(t, ok)
	assert.Equal(t, idx.Value, cached.Value)
	assert.Equal(t, []string{"u1"}, agg.Users())
}

func TestAggregator_LowConfidenceKeepsLastScore(t *testing.T) {
	states := &staticStates{states: make(map[string]*model.ProgressionState)}
	states.set(stateWithScores("u1", testStart, lopsidedScores(), allSamples(3)))
	agg := newTestAggregator(states, nil, testStart)
	ctx := context.Background()

	first, err := agg.Compute(ctx, "u1")
	require.NoError(t, err)
	reflectionScore := first.Scores[model.DimensionReflection]

	// reflection jumps but is backed by a single sample
	scores := lopsidedScores()
	scores[model.DimensionReflection] = 95
	samples := allSamples(3)
	samples[model.DimensionReflection] = 1
	states.set(stateWithScores("u1", testStart, scores, samples))

	second, err := agg.Compute(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, second.Included, 5)
	assert.NotContains(t, second.Included, model.DimensionReflection)
	assert.Equal(t, reflectionScore, second.Scores[model.DimensionReflection])
	assert.InDelta(t, 0.2, second.Confidence[model.DimensionReflection], 1e-9)
	assert.InDelta(t, 90, second.Value, 0.5)
	assert.Equal(t, model.TrendImproving, second.Trend)
}

func TestAggregator_NothingQualifiesKeepsPreviousValue(t *testing.T) {
	states := &staticStates{states: make(map[string]*model.ProgressionState)}
	states.set(stateWithScores("u1", testStart, lopsidedScores(), allSamples(5)))
	agg := newTestAggregator(states, nil, testStart)
	ctx := context.Background()

	first, err := agg.Compute(ctx, "u1")
	require.NoError(t, err)

	states.set(stateWithScores("u1", testStart, lopsidedScores(), allSamples(0)))
	second, err := agg.Compute(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, second.HasValue)
	assert.Empty(t, second.Included)
	assert.Equal(t, first.Value, second.Value)
}

func TestAggregator_NoEvidenceHasNoValue(t *testing.T) {
	states := &staticStates{states: make(map[string]*model.ProgressionState)}
	states.set(model.NewProgressionState("u1", testStart))
	agg := newTestAggregator(states, nil, testStart)

	idx, err := agg.Compute(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, idx.HasValue)
	assert.Zero(t, idx.Value)
}

func TestAggregator_PublishesSignificantMoves(t *testing.T) {
	states := &staticStates{states: make(map[string]*model.ProgressionState)}
	states.set(stateWithScores("u1", testStart, lopsidedScores(), allSamples(3)))
	hub := NewChangeHub(0)
	defer hub.Close()

	var got []model.Change
	hub.OnChange(func(c model.Change) { got = append(got, c) })
	agg := newTestAggregator(states, hub, testStart)
	ctx := context.Background()

	_, err := agg.Compute(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got, "first computation has nothing to compare against")

	_, err = agg.Compute(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got, "unchanged value")

	scores := lopsidedScores()
	scores[model.DimensionReflection] = 50
	states.set(stateWithScores("u1", testStart, scores, allSamples(3)))
	_, err = agg.Compute(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ChangeWellnessIndex, got[0].Type)
	assert.Greater(t, got[0].After, got[0].Before)
}

func TestAggregator_UnknownUser(t *testing.T) {
	states := &staticStates{states: make(map[string]*model.ProgressionState)}
	agg := newTestAggregator(states, nil, testStart)

	_, err := agg.Compute(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, ok := agg.Current("ghost")
	assert.False(t, ok)
}
