package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/model"
)

func defaultEngine(t *testing.T) *BadgeEngine {
	t.Helper()
	catalog, err := DefaultBadgeCatalog()
	require.NoError(t, err)
	return NewBadgeEngine(catalog)
}

func progressOf(t *testing.T, list []model.BadgeProgress, id string) (model.BadgeProgress, bool) {
	t.Helper()
	for _, bp := range list {
		if bp.BadgeID == id {
			return bp, true
		}
	}
	return model.BadgeProgress{}, false
}

func TestDefaultBadgeCatalog(t *testing.T) {
	catalog, err := DefaultBadgeCatalog()
	require.NoError(t, err)
	assert.Equal(t, 23, catalog.Len())

	def, err := catalog.Get("focus_marathon")
	require.NoError(t, err)
	assert.Equal(t, model.TierSilver, def.Tier)
	assert.Equal(t, []string{"deep_diver"}, def.PrerequisiteBadgeIDs)
	require.NotNil(t, def.Dimension)
	assert.Equal(t, model.DimensionCognitive, *def.Dimension)

	dedicated, err := catalog.Get("dedicated")
	require.NoError(t, err)
	assert.False(t, dedicated.RequireAll)

	sprint, err := catalog.Get("new_year_sprint")
	require.NoError(t, err)
	require.NotNil(t, sprint.UnlocksAt)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), sprint.UnlocksAt.UTC())

	_, err = catalog.Get("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestParseBadgeCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "duplicate id",
			yaml: `
badges:
  - {id: a, tier: bronze, requirements: [{kind: count, target: 1}]}
  - {id: a, tier: bronze, requirements: [{kind: count, target: 1}]}
`,
			want: ErrDuplicateBadgeID,
		},
		{
			name: "unknown prerequisite",
			yaml: `
badges:
  - {id: a, tier: bronze, prerequisites: [b], requirements: [{kind: count, target: 1}]}
`,
			want: ErrUnknownPrerequisite,
		},
		{
			name: "unknown kind",
			yaml: `
badges:
  - {id: a, tier: bronze, requirements: [{kind: karma, target: 1}]}
`,
			want: ErrInvalidRequirement,
		},
		{
			name: "unknown tier",
			yaml: `
badges:
  - {id: a, tier: mythic, requirements: [{kind: count, target: 1}]}
`,
			want: model.ErrDataIntegrity,
		},
		{
			name: "unknown dimension",
			yaml: `
badges:
  - {id: a, tier: bronze, requirements: [{kind: rating, dimension: spiritual, target: 1300}]}
`,
			want: model.ErrUnknownDimension,
		},
		{
			name: "no requirements",
			yaml: `
badges:
  - {id: a, tier: bronze}
`,
			want: ErrInvalidRequirement,
		},
		{
			name: "empty compound",
			yaml: `
badges:
  - {id: a, tier: bronze, requirements: [{kind: compound, parts: []}]}
`,
			want: ErrInvalidRequirement,
		},
		{
			name: "invalid compound part",
			yaml: `
badges:
  - {id: a, tier: bronze, requirements: [{kind: compound, parts: [{kind: count, target: 1}, {kind: streak, target: 0}]}]}
`,
			want: ErrInvalidRequirement,
		},
		{
			name: "malformed yaml",
			yaml: "badges: [",
			want: model.ErrDataIntegrity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBadgeCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, errors.Is(err, model.ErrDataIntegrity), "catalog errors are data integrity errors: %v", err)
		})
	}
}

func TestCombine(t *testing.T) {
	progress := []model.RequirementProgress{
		{Current: 4, Target: 10},
		{Current: 12, Target: 10},
	}
	assert.InDelta(t, 0.4, Combine(progress, true), 1e-9)
	assert.Equal(t, 1.0, Combine(progress, false))
	assert.Equal(t, 0.0, Combine(nil, true))
}

func TestEvaluate_AndOr(t *testing.T) {
	engine := defaultEngine(t)
	ec := model.NewEvaluationContext("u1", testStart)
	ec.ActivityCounts[model.ActivityWriting] = 20
	ec.TimeTotals["writing_minutes"] = 3000
	ec.EarnedBadges["wordsmith"] = testStart

	prolific, err := engine.Catalog().Get("prolific")
	require.NoError(t, err)
	bp := engine.Evaluate(prolific, ec)
	assert.Equal(t, model.BadgeEligible, bp.State)
	assert.InDelta(t, 0.4, bp.Progress, 1e-9)
	assert.False(t, bp.IsComplete)

	dedicated, err := engine.Catalog().Get("dedicated")
	require.NoError(t, err)
	ec.ActivityCounts[model.ActivityDeepWork] = 100
	bp = engine.Evaluate(dedicated, ec)
	assert.Equal(t, 1.0, bp.Progress)
	assert.True(t, bp.IsComplete)
	assert.Equal(t, model.BadgeEligible, bp.State, "met but not yet recorded")
}

func TestEvaluate_PrerequisitesLock(t *testing.T) {
	engine := defaultEngine(t)
	def, err := engine.Catalog().Get("focus_marathon")
	require.NoError(t, err)

	ec := model.NewEvaluationContext("u1", testStart)
	ec.TimeTotals["deep_work_minutes"] = 2000
	bp := engine.Evaluate(def, ec)
	assert.Equal(t, model.BadgeLocked, bp.State)
	assert.False(t, bp.PrerequisitesSatisfied)
	assert.Equal(t, 1.0, bp.Progress)
	assert.Empty(t, engine.CheckForNewlyEarned(ec), "nothing else is met and focus_marathon is locked")

	ec.EarnedBadges["deep_diver"] = testStart
	assert.Equal(t, model.BadgeEligible, engine.State(def, ec))
	newly := engine.CheckForNewlyEarned(ec)
	require.Len(t, newly, 1)
	assert.Equal(t, "focus_marathon", newly[0].ID)
}

func TestEvaluate_AvailabilityWindow(t *testing.T) {
	engine := defaultEngine(t)
	def, err := engine.Catalog().Get("new_year_sprint")
	require.NoError(t, err)

	at := func(ts time.Time) model.BadgeState {
		ec := model.NewEvaluationContext("u1", ts)
		ec.ActivityCounts[model.ActivityTask] = 40
		return engine.State(def, ec)
	}
	assert.Equal(t, model.BadgeLocked, at(time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, model.BadgeEligible, at(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.BadgeEligible, at(time.Date(2027, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, model.BadgeLocked, at(time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEvaluate_CompleteIsTerminal(t *testing.T) {
	engine := defaultEngine(t)
	def, err := engine.Catalog().Get("week_of_focus")
	require.NoError(t, err)

	// the streak is gone but the badge was recorded
	ec := model.NewEvaluationContext("u1", testStart)
	ec.EarnedBadges["week_of_focus"] = testStart.AddDate(0, -1, 0)
	bp := engine.Evaluate(def, ec)
	assert.Equal(t, model.BadgeComplete, bp.State)
	assert.True(t, bp.Earned)
	assert.Equal(t, 1.0, bp.Progress)
	require.NotNil(t, bp.EarnedAt)

	for _, newly := range engine.CheckForNewlyEarned(ec) {
		assert.NotEqual(t, "week_of_focus", newly.ID)
	}
}

func TestProgress_HidesUnearnedSecrets(t *testing.T) {
	engine := defaultEngine(t)
	ec := model.NewEvaluationContext("u1", testStart)

	visible := engine.Progress(ec, false)
	_, ok := progressOf(t, visible, "craftsman")
	assert.False(t, ok)
	_, ok = progressOf(t, visible, "steady_hand")
	assert.False(t, ok)
	assert.Len(t, visible, 20)

	assert.Len(t, engine.Progress(ec, true), 22)

	ec.EarnedBadges["craftsman"] = testStart
	bp, ok := progressOf(t, engine.Progress(ec, false), "craftsman")
	require.True(t, ok)
	assert.False(t, bp.IsSecret)
	assert.Equal(t, model.BadgeComplete, bp.State)
}

func TestEvaluateRequirement_Unscoped(t *testing.T) {
	ec := model.NewEvaluationContext("u1", testStart)
	ec.CurrentStreaks[model.StreakDeepWork] = 20
	ec.CurrentStreaks[model.StreakJournal] = 9
	ec.Ratings[model.DimensionCognitive] = 1800

	streak := EvaluateRequirement(&model.StreakRequirement{Target: 14}, ec)
	assert.Equal(t, 9.0, streak.Current)

	// missing dimensions count at the default rating
	rating := EvaluateRequirement(&model.RatingRequirement{Target: 1300}, ec)
	assert.Equal(t, 1300.0, rating.Current)

	ec.PermanentIndex = 12
	level := EvaluateRequirement(&model.LevelRequirement{Target: 25}, ec)
	assert.Equal(t, 12.0, level.Current)
	assert.InDelta(t, 0.48, level.Ratio(), 1e-9)

	ec.ActivityCounts[model.ActivityTask] = 3
	ec.ActivityCounts[model.ActivityNote] = 4
	count := EvaluateRequirement(&model.CountRequirement{Target: 10}, ec)
	assert.Equal(t, 7.0, count.Current)
}

func TestEvaluateRequirement_MultiDimension(t *testing.T) {
	ec := model.NewEvaluationContext("u1", testStart)
	for i, d := range model.AllDimensions {
		ec.Levels[d] = i + 3
		if i%2 == 0 {
			ec.DimensionActivityCounts[d] = 1
		}
	}

	level := EvaluateRequirement(&model.MultiDimensionRequirement{Criterion: model.CriterionLevel, MinValue: 5, MinDimensions: 6}, ec)
	assert.Equal(t, 4.0, level.Current)
	assert.Equal(t, 6.0, level.Target)

	active := EvaluateRequirement(&model.MultiDimensionRequirement{Criterion: model.CriterionActive, MinDimensions: 6}, ec)
	assert.Equal(t, 3.0, active.Current)
}

func TestEvaluateRequirement_Compound(t *testing.T) {
	ec := model.NewEvaluationContext("u1", testStart)
	ec.CurrentStreaks[model.StreakWorkout] = 7
	ec.CurrentStreaks[model.StreakJournal] = 14
	ec.Levels[model.DimensionPhysiological] = 4

	parts := []model.Requirement{
		&model.StreakRequirement{StreakType: model.StreakWorkout, Target: 14},
		&model.StreakRequirement{StreakType: model.StreakJournal, Target: 14},
	}
	all := EvaluateRequirement(&model.CompoundRequirement{Parts: parts}, ec)
	assert.Equal(t, model.RequirementCompound, all.Kind)
	assert.Equal(t, 0.5, all.Ratio())

	anyOf := EvaluateRequirement(&model.CompoundRequirement{Parts: parts, Any: true}, ec)
	assert.Equal(t, 1.0, anyOf.Ratio())
	assert.Contains(t, anyOf.Description, " or ")

	engine := defaultEngine(t)
	def, err := engine.Catalog().Get("steady_body")
	require.NoError(t, err)
	require.Len(t, def.Requirements, 2)
	assert.Equal(t, model.RequirementCompound, def.Requirements[1].Kind())

	bp := engine.Evaluate(def, ec)
	assert.False(t, bp.IsComplete)
	ec.Levels[model.DimensionPhysiological] = 5
	bp = engine.Evaluate(def, ec)
	assert.True(t, bp.IsComplete)
}
