package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/forgo/progression/internal/model"
)

// MultiplierTier is one step of the streak multiplier table
type MultiplierTier struct {
	MinDays    int
	Multiplier float64
}

// StreakMultipliers is the step function from consecutive days to XP multiplier.
// Tiers are ordered by MinDays and multipliers never decrease.
var StreakMultipliers = []MultiplierTier{
	{MinDays: 0, Multiplier: 1.0},
	{MinDays: 7, Multiplier: 1.1},
	{MinDays: 14, Multiplier: 1.2},
	{MinDays: 30, Multiplier: 1.35},
	{MinDays: 60, Multiplier: 1.5},
	{MinDays: 100, Multiplier: 1.75},
	{MinDays: 180, Multiplier: 2.0},
	{MinDays: 365, Multiplier: 2.5},
	{MinDays: 1000, Multiplier: 3.0},
}

// MultiplierFor returns the XP multiplier earned by a streak of count days
func MultiplierFor(count int) float64 {
	m := 1.0
	for _, tier := range StreakMultipliers {
		if count < tier.MinDays {
			break
		}
		m = tier.Multiplier
	}
	return m
}

// StreakTracker operates on a user's streak records in place.
// It is not safe for concurrent use; callers hold the state lock.
type StreakTracker struct {
	streaks map[model.StreakType]*model.StreakRecord
	loc     *time.Location
}

// NewStreakTracker creates a tracker over streaks. A nil map is allocated.
func NewStreakTracker(streaks map[model.StreakType]*model.StreakRecord, loc *time.Location) *StreakTracker {
	if streaks == nil {
		streaks = make(map[model.StreakType]*model.StreakRecord)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{streaks: streaks, loc: loc}
}

// Streaks returns the underlying record map
func (t *StreakTracker) Streaks() map[model.StreakType]*model.StreakRecord {
	return t.streaks
}

// Get returns the record for typ, creating an inactive one if missing
func (t *StreakTracker) Get(typ model.StreakType) *model.StreakRecord {
	rec, ok := t.streaks[typ]
	if !ok || rec == nil {
		rec = &model.StreakRecord{Type: typ}
		t.streaks[typ] = rec
	}
	return rec
}

// Increment adds one day to the streak and stamps the activity time
func (t *StreakTracker) Increment(typ model.StreakType, at time.Time) *model.StreakRecord {
	rec := t.Get(typ)
	rec.CurrentCount++
	if rec.CurrentCount > rec.LongestCount {
		rec.LongestCount = rec.CurrentCount
	}
	rec.IsActive = true
	stamp := at
	rec.LastActivityDate = &stamp
	return rec
}

// Reset breaks the streak. The longest count is kept.
func (t *StreakTracker) Reset(typ model.StreakType) *model.StreakRecord {
	rec := t.Get(typ)
	rec.CurrentCount = 0
	rec.IsActive = false
	rec.FrozenThrough = nil
	return rec
}

// RecordDay registers qualifying activity at the given time. A second activity
// on the same calendar day is a no-op, the next day extends the streak, and a
// gap restarts it at one. Days protected by a freeze count as consecutive.
// It reports whether the current count changed.
func (t *StreakTracker) RecordDay(typ model.StreakType, at time.Time) (*model.StreakRecord, bool) {
	rec := t.Get(typ)
	if !rec.IsActive || rec.LastActivityDate == nil {
		rec.CurrentCount = 0
		return t.Increment(typ, at), true
	}

	days := model.DaysBetween(*rec.LastActivityDate, at, t.loc)
	switch {
	case days <= 0:
		// same day or backdated
		return rec, false
	case days == 1 || t.coveredByFreeze(rec, at):
		return t.Increment(typ, at), true
	default:
		t.Reset(typ)
		return t.Increment(typ, at), true
	}
}

// coveredByFreeze reports whether every missed day before at is frozen
func (t *StreakTracker) coveredByFreeze(rec *model.StreakRecord, at time.Time) bool {
	if rec.FrozenThrough == nil {
		return false
	}
	return model.DaysBetween(*rec.FrozenThrough, at, t.loc) <= 1
}

// Covers reports whether the streak already accounts for day, either through
// activity on or after it or through a freeze.
func (t *StreakTracker) Covers(rec *model.StreakRecord, day time.Time) bool {
	if rec.LastActivityDate != nil && model.DaysBetween(day, *rec.LastActivityDate, t.loc) >= 0 {
		return true
	}
	return rec.FrozenThrough != nil && model.DaysBetween(day, *rec.FrozenThrough, t.loc) >= 0
}

// Freeze spends one freeze token to protect day. It returns false when no
// token is available.
func (t *StreakTracker) Freeze(typ model.StreakType, day time.Time) bool {
	rec := t.Get(typ)
	if rec.FreezeTokens <= 0 {
		return false
	}
	rec.FreezeTokens--
	d := model.StartOfDay(day, t.loc)
	rec.FrozenThrough = &d
	return true
}

// GrantFreeze banks a freeze token for typ
func (t *StreakTracker) GrantFreeze(typ model.StreakType) (*model.StreakRecord, error) {
	rec := t.Get(typ)
	if rec.FreezeTokens >= model.MaxFreezeTokens {
		return rec, fmt.Errorf("%s already holds %d freeze tokens: %w", typ, model.MaxFreezeTokens, model.ErrInvalidState)
	}
	rec.FreezeTokens++
	return rec, nil
}

// TotalMultiplier returns the highest multiplier among active streaks.
// Simultaneous streaks never compound.
func (t *StreakTracker) TotalMultiplier() float64 {
	best := 1.0
	for _, rec := range t.streaks {
		if rec == nil || !rec.IsActive {
			continue
		}
		if m := MultiplierFor(rec.CurrentCount); m > best {
			best = m
		}
	}
	return best
}

// Weakest returns the lowest current count across tracked streaks, or 0 when
// nothing is tracked
func (t *StreakTracker) Weakest() int {
	first := true
	weakest := 0
	for _, rec := range t.streaks {
		if rec == nil {
			continue
		}
		if first || rec.CurrentCount < weakest {
			weakest = rec.CurrentCount
			first = false
		}
	}
	return weakest
}

// Types returns the tracked streak types in stable order
func (t *StreakTracker) Types() []model.StreakType {
	types := make([]model.StreakType, 0, len(t.streaks))
	for typ := range t.streaks {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
