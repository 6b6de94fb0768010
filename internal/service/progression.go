package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgo/progression/internal/model"
)

// StateRepository defines the interface for progression state storage
type StateRepository interface {
	// GetState returns model.ErrNotFound when the user has no state yet
	GetState(ctx context.Context, userID string) (*model.ProgressionState, error)
	SaveState(ctx context.Context, state *model.ProgressionState) error
}

// ActivityRepository defines the interface for raw activity storage
type ActivityRepository interface {
	AppendActivity(ctx context.Context, activity *model.Activity) error
	// ListActivities returns activities with OccurredAt in [from, to), oldest first
	ListActivities(ctx context.Context, userID string, from, to time.Time) ([]*model.Activity, error)
}

// ChangeLogRepository defines the interface for the durable change log
type ChangeLogRepository interface {
	AppendChanges(ctx context.Context, changes []model.Change) error
	// ListChanges returns changes with At in [from, to), oldest first
	ListChanges(ctx context.Context, userID string, from, to time.Time) ([]model.Change, error)
}

// ProgressionService owns the per-user progression state: XP awards, rating
// updates, streaks and the overall rating.
//
// Every mutation of a user's state runs under that user's lock on a working
// copy; the lock is released before the copy is persisted, and persistence is
// serialized so an older version never overwrites a newer one.
type ProgressionService struct {
	states      StateRepository
	activities  ActivityRepository
	changeLog   ChangeLogRepository
	hub         *ChangeHub
	rules       ActivityRules
	weights     map[model.Dimension]float64
	loc         *time.Location
	historyDays int
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	users map[string]*userEntry

	saveMu    sync.Mutex
	lastSaved map[string]int64
}

type userEntry struct {
	mu    sync.Mutex
	state *model.ProgressionState
}

// ProgressionServiceConfig holds configuration for the progression service
type ProgressionServiceConfig struct {
	States     StateRepository
	Activities ActivityRepository
	ChangeLog  ChangeLogRepository
	Hub        *ChangeHub
	Rules      ActivityRules
	// Weights are the canonical dimension weights; nil uses DefaultWeights
	Weights           map[model.Dimension]float64
	Location          *time.Location
	RatingHistoryDays int
	Logger            *zap.Logger
	Now               func() time.Time
}

// DefaultWeights returns the canonical dimension weights
func DefaultWeights() map[model.Dimension]float64 {
	return map[model.Dimension]float64{
		model.DimensionCognitive:     0.20,
		model.DimensionBehavioral:    0.20,
		model.DimensionCreative:      0.15,
		model.DimensionPhysiological: 0.15,
		model.DimensionKnowledge:     0.15,
		model.DimensionReflection:    0.15,
	}
}

// WeightsFromConfig converts configured weights keyed by name
func WeightsFromConfig(in map[string]float64) (map[model.Dimension]float64, error) {
	out := make(map[model.Dimension]float64, len(in))
	for name, w := range in {
		d, err := model.ParseDimension(name)
		if err != nil {
			return nil, err
		}
		out[d] = w
	}
	return out, nil
}

// NewProgressionService creates a new progression service
func NewProgressionService(cfg ProgressionServiceConfig) *ProgressionService {
	s := &ProgressionService{
		states:      cfg.States,
		activities:  cfg.Activities,
		changeLog:   cfg.ChangeLog,
		hub:         cfg.Hub,
		rules:       cfg.Rules,
		weights:     cfg.Weights,
		loc:         cfg.Location,
		historyDays: cfg.RatingHistoryDays,
		logger:      cfg.Logger,
		now:         cfg.Now,
		users:       make(map[string]*userEntry),
		lastSaved:   make(map[string]int64),
	}
	if s.rules == nil {
		s.rules = DefaultActivityRules()
	}
	if s.weights == nil {
		s.weights = DefaultWeights()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.historyDays <= 0 {
		s.historyDays = model.DefaultRatingHistoryDays
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location returns the time zone used to cut calendar days
func (s *ProgressionService) Location() *time.Location {
	return s.loc
}

// Weights returns the canonical dimension weights
func (s *ProgressionService) Weights() map[model.Dimension]float64 {
	return s.weights
}

// Now returns the service clock
func (s *ProgressionService) Now() time.Time {
	return s.now()
}

// Hub returns the change hub, which may be nil
func (s *ProgressionService) Hub() *ChangeHub {
	return s.hub
}

// ============================================================================
// State access
// ============================================================================

// State returns a copy of the user's progression state, creating the default
// state on first use
func (s *ProgressionService) State(ctx context.Context, userID string) (*model.ProgressionState, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	entry, err := s.lockLoaded(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

func (s *ProgressionService) entry(userID string) *userEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID]
	if !ok {
		e = &userEntry{}
		s.users[userID] = e
	}
	return e
}

// lockLoaded returns the user's entry locked with its state loaded. Storage
// is read without holding the entry lock.
func (s *ProgressionService) lockLoaded(ctx context.Context, userID string) (*userEntry, error) {
	entry := s.entry(userID)
	for {
		entry.mu.Lock()
		if entry.state != nil {
			return entry, nil
		}
		entry.mu.Unlock()

		st, err := s.states.GetState(ctx, userID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			st = model.NewProgressionState(userID, s.now())
			s.logger.Info("created progression state", zap.String("user_id", userID))
		case err != nil:
			return nil, fmt.Errorf("load progression state: %w", err)
		}
		s.normalize(st)

		entry.mu.Lock()
		if entry.state == nil {
			entry.state = st
		}
		entry.mu.Unlock()
	}
}

// normalize repairs structural gaps of a loaded state
func (s *ProgressionService) normalize(st *model.ProgressionState) {
	for _, d := range model.AllDimensions {
		st.Dimension(d)
	}
	if st.Streaks == nil {
		st.Streaks = make(map[model.StreakType]*model.StreakRecord)
	}
	if st.PermanentIndex < 1 {
		st.PermanentIndex = 1
	}
}

// MutateFunc changes a working copy of the state and returns the change records
type MutateFunc func(st *model.ProgressionState, now time.Time) ([]model.Change, error)

// Mutate applies fn to the user's state. When fn fails the state is left
// untouched. The committed state is persisted and its changes published.
func (s *ProgressionService) Mutate(ctx context.Context, userID string, fn MutateFunc) (*model.ProgressionState, []model.Change, error) {
	if userID == "" {
		return nil, nil, ErrUserIDRequired
	}
	entry, err := s.lockLoaded(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	working := entry.state.Clone()
	changes, err := fn(working, now)
	if err != nil {
		entry.mu.Unlock()
		return nil, nil, err
	}
	if len(changes) == 0 {
		snapshot := entry.state.Clone()
		entry.mu.Unlock()
		return snapshot, nil, nil
	}
	working.Version++
	working.UpdatedOn = now
	entry.state = working
	snapshot := working.Clone()
	entry.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		// drop the cached copy so the next access reloads what storage holds
		entry.mu.Lock()
		if entry.state != nil && entry.state.Version == snapshot.Version {
			entry.state = nil
		}
		entry.mu.Unlock()
		return nil, nil, err
	}

	if s.changeLog != nil {
		if err := s.changeLog.AppendChanges(ctx, changes); err != nil {
			s.logger.Warn("failed to append change log",
				zap.String("user_id", userID),
				zap.Int("changes", len(changes)),
				zap.Error(err))
		}
	}
	s.hub.Publish(changes...)
	return snapshot, changes, nil
}

// Changes returns logged changes in [from, to). Without a change log it
// returns nothing.
func (s *ProgressionService) Changes(ctx context.Context, userID string, from, to time.Time) ([]model.Change, error) {
	if s.changeLog == nil {
		return nil, nil
	}
	return s.changeLog.ListChanges(ctx, userID, from, to)
}

// XPByDimension totals awarded XP per dimension from xp_awarded changes
func XPByDimension(changes []model.Change) map[model.Dimension]int64 {
	out := make(map[model.Dimension]int64)
	for _, c := range changes {
		if c.Type != model.ChangeXPAwarded || c.Dimension == nil {
			continue
		}
		if delta := int64(c.After - c.Before); delta > 0 {
			out[*c.Dimension] += delta
		}
	}
	return out
}

// persist writes a state snapshot unless a newer version was already written
func (s *ProgressionService) persist(ctx context.Context, st *model.ProgressionState) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if last, ok := s.lastSaved[st.UserID]; ok && last >= st.Version {
		return nil
	}
	if err := s.states.SaveState(ctx, st); err != nil {
		s.logger.Error("failed to save progression state",
			zap.String("user_id", st.UserID),
			zap.Int64("version", st.Version),
			zap.Error(err))
		return fmt.Errorf("save progression state: %w", err)
	}
	s.lastSaved[st.UserID] = st.Version
	return nil
}

// ============================================================================
// XP
// ============================================================================

// XPAward is the outcome of one XP award
type XPAward struct {
	Dimension   model.Dimension `json:"dimension"`
	Base        int64           `json:"base"`
	Multiplier  float64         `json:"multiplier"`
	Awarded     int64           `json:"awarded"`
	LevelBefore int             `json:"level_before"`
	LevelAfter  int             `json:"level_after"`
	Changes     []model.Change  `json:"changes,omitempty"`
}

// AwardXP multiplies base by the total streak multiplier and credits the
// result to the dimension and to the permanent index total. It returns the
// awarded (post-multiplier) amount.
func (s *ProgressionService) AwardXP(ctx context.Context, userID string, dim model.Dimension, base int64, source string) (*XPAward, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownDimension, dim)
	}
	if base < 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidAmount, base)
	}

	var award *XPAward
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		mult := NewStreakTracker(st.Streaks, s.loc).TotalMultiplier()
		award = s.applyXP(st, dim, base, mult, source, now)
		return award.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	award.Changes = changes
	return award, nil
}

// applyXP credits XP to a working state
func (s *ProgressionService) applyXP(st *model.ProgressionState, dim model.Dimension, base int64, mult float64, source string, now time.Time) *XPAward {
	p := st.Dimension(dim)
	award := &XPAward{
		Dimension:   dim,
		Base:        base,
		Multiplier:  mult,
		Awarded:     int64(math.Round(float64(base) * mult)),
		LevelBefore: p.Level,
	}
	if award.Awarded <= 0 {
		award.Awarded = 0
		award.LevelAfter = p.Level
		return award
	}

	p.TotalXP += award.Awarded
	p.Level = LevelForXP(p.TotalXP)
	p.XP = XPInLevel(p.TotalXP)
	p.LastActiveDate = timePtr(now)
	st.TotalXP += award.Awarded
	st.LastXPAt = timePtr(now)
	award.LevelAfter = p.Level

	award.Changes = append(award.Changes, model.Change{
		Type:      model.ChangeXPAwarded,
		UserID:    st.UserID,
		Dimension: model.DimensionPtr(dim),
		Subject:   source,
		Before:    float64(p.TotalXP - award.Awarded),
		After:     float64(p.TotalXP),
		Message:   fmt.Sprintf("+%d XP in %s", award.Awarded, dim),
		At:        now,
	})
	if p.Level > award.LevelBefore {
		st.LastLevelUpAt = timePtr(now)
		award.Changes = append(award.Changes, model.Change{
			Type:      model.ChangeLevelChanged,
			UserID:    st.UserID,
			Dimension: model.DimensionPtr(dim),
			Before:    float64(award.LevelBefore),
			After:     float64(p.Level),
			Message:   fmt.Sprintf("%s reached level %d", dim, p.Level),
			At:        now,
		})
	}

	// the permanent index only moves up
	if idx := LevelForXP(st.TotalXP); idx > st.PermanentIndex {
		before := st.PermanentIndex
		st.PermanentIndex = idx
		award.Changes = append(award.Changes, model.Change{
			Type:    model.ChangePermanentIndexUp,
			UserID:  st.UserID,
			Before:  float64(before),
			After:   float64(idx),
			Message: fmt.Sprintf("permanent index %d", idx),
			At:      now,
		})
	}
	return award
}

// ============================================================================
// Rating
// ============================================================================

// KFactor returns the adaptive rate for a rating. Ratings well away from the
// default move faster; ratings near either bound move slower.
func KFactor(rating int) float64 {
	switch {
	case rating-model.MinRating < 100 || model.MaxRating-rating < 100:
		return 16
	case abs(rating-model.DefaultRating) >= 200:
		return 40
	default:
		return 32
	}
}

// AdjustRatingChange scales a raw change by KFactor(current)/32
func AdjustRatingChange(current, raw int) int {
	return int(math.Round(float64(raw) * KFactor(current) / 32))
}

// ClampRating bounds a rating to [MinRating, MaxRating]
func ClampRating(r int) int {
	if r < model.MinRating {
		return model.MinRating
	}
	if r > model.MaxRating {
		return model.MaxRating
	}
	return r
}

// RatingUpdate is the outcome of one rating update
type RatingUpdate struct {
	Dimension     model.Dimension `json:"dimension"`
	Raw           int             `json:"raw"`
	Adjusted      int             `json:"adjusted"`
	Before        int             `json:"before"`
	After         int             `json:"after"`
	OverallBefore int             `json:"overall_before"`
	OverallAfter  int             `json:"overall_after"`
	Changes       []model.Change  `json:"changes,omitempty"`
}

// UpdateRating applies an adaptive-rate rating change to a dimension and
// recomputes the overall rating
func (s *ProgressionService) UpdateRating(ctx context.Context, userID string, dim model.Dimension, raw int, cause string) (*RatingUpdate, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownDimension, dim)
	}

	var update *RatingUpdate
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		update = s.applyRatingChange(st, dim, raw, cause, now)
		return update.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	update.Changes = changes
	return update, nil
}

// applyRatingChange updates one dimension rating on a working state
func (s *ProgressionService) applyRatingChange(st *model.ProgressionState, dim model.Dimension, raw int, cause string, now time.Time) *RatingUpdate {
	p := st.Dimension(dim)
	update := &RatingUpdate{
		Dimension:     dim,
		Raw:           raw,
		Adjusted:      AdjustRatingChange(p.Rating, raw),
		Before:        p.Rating,
		OverallBefore: st.OverallRating,
	}
	update.After = ClampRating(p.Rating + update.Adjusted)
	update.Changes = s.setRating(st, dim, update.After, cause, model.ChangeRatingChanged, now)
	update.OverallAfter = st.OverallRating
	return update
}

// setRating writes a new rating, records history and recomputes the overall rating
func (s *ProgressionService) setRating(st *model.ProgressionState, dim model.Dimension, rating int, cause string, kind model.ChangeType, now time.Time) []model.Change {
	p := st.Dimension(dim)
	rating = ClampRating(rating)
	before := p.Rating
	cutoff := now.AddDate(0, 0, -s.historyDays)
	if rating == before {
		p.RatingHistory = PruneRatingHistory(p.RatingHistory, cutoff)
		return nil
	}

	p.Rating = rating
	p.RatingHistory = append(p.RatingHistory, model.RatingHistoryEntry{
		Date:   now,
		Rating: rating,
		Delta:  rating - before,
		Cause:  cause,
	})
	p.RatingHistory = PruneRatingHistory(p.RatingHistory, cutoff)

	changes := []model.Change{{
		Type:      kind,
		UserID:    st.UserID,
		Dimension: model.DimensionPtr(dim),
		Subject:   cause,
		Before:    float64(before),
		After:     float64(rating),
		Message:   fmt.Sprintf("%s rating %d -> %d", dim, before, rating),
		At:        now,
	}}
	if c, ok := s.recomputeOverall(st, now); ok {
		changes = append(changes, c)
	}
	return changes
}

// PruneRatingHistory drops entries dated before cutoff and entries without a date
func PruneRatingHistory(history []model.RatingHistoryEntry, cutoff time.Time) []model.RatingHistoryEntry {
	kept := history[:0]
	for _, e := range history {
		if e.Date.IsZero() || e.Date.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// OverallRating returns the weighted average of dimension ratings
func OverallRating(st *model.ProgressionState, weights map[model.Dimension]float64) int {
	sum, total := 0.0, 0.0
	for _, d := range model.AllDimensions {
		w := weights[d]
		if w <= 0 {
			continue
		}
		sum += w * float64(st.Dimension(d).Rating)
		total += w
	}
	if total == 0 {
		return model.DefaultRating
	}
	return int(math.Round(sum / total))
}

// recomputeOverall refreshes the overall rating and its trend
func (s *ProgressionService) recomputeOverall(st *model.ProgressionState, now time.Time) (model.Change, bool) {
	before := st.OverallRating
	after := OverallRating(st, s.weights)
	st.OverallRating = after
	st.OverallRatingTrend = model.ClassifyTrend(float64(after - before))
	if after == before {
		return model.Change{}, false
	}
	return model.Change{
		Type:    model.ChangeOverallRating,
		UserID:  st.UserID,
		Subject: string(st.OverallRatingTrend),
		Before:  float64(before),
		After:   float64(after),
		Message: fmt.Sprintf("overall rating %d -> %d", before, after),
		At:      now,
	}, true
}

// RatingTrend classifies a rating history by its net change across the window
func RatingTrend(history []model.RatingHistoryEntry) model.Trend {
	if len(history) == 0 {
		return model.TrendStable
	}
	first := history[0]
	last := history[len(history)-1]
	start := first.Rating - first.Delta
	return model.ClassifyTrend(float64(last.Rating - start))
}

// ============================================================================
// Activities and streaks
// ============================================================================

// ActivityResult is the outcome of recording one activity
type ActivityResult struct {
	Activity *model.Activity     `json:"activity"`
	XP       *XPAward            `json:"xp"`
	Streak   *model.StreakRecord `json:"streak,omitempty"`
	Rating   *RatingUpdate       `json:"rating,omitempty"`
	Changes  []model.Change      `json:"changes,omitempty"`
}

// RecordActivity stores a raw activity, extends its streak, awards XP and
// nudges the dimension rating
func (s *ProgressionService) RecordActivity(ctx context.Context, userID string, a *model.Activity) (*ActivityResult, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rule, err := s.rules.Resolve(a)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.UserID = userID
	if a.OccurredAt.IsZero() {
		a.OccurredAt = now
	}
	a.CreatedOn = now
	a.Dimension = model.DimensionPtr(rule.Dimension)

	if s.activities != nil {
		if err := s.activities.AppendActivity(ctx, a); err != nil {
			return nil, fmt.Errorf("append activity: %w", err)
		}
	}

	result := &ActivityResult{Activity: a}
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		var out []model.Change
		st.LifetimeActivities++

		tracker := NewStreakTracker(st.Streaks, s.loc)
		if rule.StreakType != "" {
			before := tracker.Get(rule.StreakType).CurrentCount
			rec, extended := tracker.RecordDay(rule.StreakType, a.OccurredAt)
			if extended {
				out = append(out, model.Change{
					Type:    model.ChangeStreakExtended,
					UserID:  userID,
					Subject: string(rule.StreakType),
					Before:  float64(before),
					After:   float64(rec.CurrentCount),
					Message: fmt.Sprintf("%s streak at %d days", rule.StreakType, rec.CurrentCount),
					At:      now,
				})
			}
			cp := *rec
			result.Streak = &cp
		}

		result.XP = s.applyXP(st, rule.Dimension, rule.BaseXPFor(a), tracker.TotalMultiplier(), "activity:"+a.Type, now)
		out = append(out, result.XP.Changes...)

		result.Rating = s.applyRatingChange(st, rule.Dimension, RatingChangeFor(a), "activity", now)
		out = append(out, result.Rating.Changes...)

		// lifetime counter always changes; make sure the mutation commits
		if len(out) == 0 {
			out = append(out, model.Change{
				Type:      model.ChangeXPAwarded,
				UserID:    userID,
				Dimension: model.DimensionPtr(rule.Dimension),
				Subject:   "activity:" + a.Type,
				At:        now,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	result.Changes = changes
	s.logger.Debug("recorded activity",
		zap.String("user_id", userID),
		zap.String("type", a.Type),
		zap.Int64("xp", result.XP.Awarded))
	return result, nil
}

// GrantFreeze banks one streak freeze token
func (s *ProgressionService) GrantFreeze(ctx context.Context, userID string, typ model.StreakType) (*model.StreakRecord, error) {
	var rec model.StreakRecord
	_, _, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		r, err := NewStreakTracker(st.Streaks, s.loc).GrantFreeze(typ)
		if err != nil {
			return nil, err
		}
		rec = *r
		return []model.Change{{
			Type:    model.ChangeStreakFrozen,
			UserID:  userID,
			Subject: string(typ),
			Before:  float64(r.FreezeTokens - 1),
			After:   float64(r.FreezeTokens),
			Message: fmt.Sprintf("%s freeze token granted", typ),
			At:      now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ============================================================================
// Maintenance operations used by the daily pipeline
// ============================================================================

// CheckStreaks breaks every active streak without activity on day, spending a
// freeze token instead when one is banked. It returns the number of streaks
// inspected.
func (s *ProgressionService) CheckStreaks(ctx context.Context, userID string, day time.Time) (int, []model.Change, error) {
	inspected := 0
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		var out []model.Change
		tracker := NewStreakTracker(st.Streaks, s.loc)
		for _, typ := range tracker.Types() {
			rec := tracker.Get(typ)
			if !rec.IsActive {
				continue
			}
			inspected++
			if tracker.Covers(rec, day) {
				continue
			}
			count := rec.CurrentCount
			if tracker.Freeze(typ, day) {
				out = append(out, model.Change{
					Type:    model.ChangeStreakFrozen,
					UserID:  userID,
					Subject: string(typ),
					Before:  float64(count),
					After:   float64(count),
					Message: fmt.Sprintf("%s streak protected by a freeze (%d left)", typ, rec.FreezeTokens),
					At:      day,
				})
				continue
			}
			tracker.Reset(typ)
			out = append(out, model.Change{
				Type:    model.ChangeStreakBroken,
				UserID:  userID,
				Subject: string(typ),
				Before:  float64(count),
				After:   0,
				Message: fmt.Sprintf("%s streak of %d days ended", typ, count),
				At:      day,
			})
		}
		return out, nil
	})
	return inspected, changes, err
}

// Regress decays the rating of each listed dimension by rate, clamped to the
// rating floor, and recomputes the overall rating
func (s *ProgressionService) Regress(ctx context.Context, userID string, dims []model.Dimension, rate float64, at time.Time) ([]model.Change, error) {
	if rate <= 0 || len(dims) == 0 {
		return nil, nil
	}
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		var out []model.Change
		for _, d := range dims {
			p := st.Dimension(d)
			decayed := int(math.Round(float64(p.Rating) * (1 - rate)))
			out = append(out, s.setRating(st, d, decayed, "regression", model.ChangeRatingRegressed, at)...)
		}
		return out, nil
	})
	return changes, err
}

// RecalculateLevels recomputes every level, within-level XP and the
// permanent index from lifetime XP and corrects any drift
func (s *ProgressionService) RecalculateLevels(ctx context.Context, userID string) ([]model.Change, error) {
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		var out []model.Change
		var total int64
		for _, d := range model.AllDimensions {
			p := st.Dimension(d)
			if p.TotalXP < 0 {
				p.TotalXP = 0
			}
			total += p.TotalXP
			want := LevelForXP(p.TotalXP)
			wantXP := XPInLevel(p.TotalXP)
			if p.Level == want && p.XP == wantXP {
				continue
			}
			out = append(out, model.Change{
				Type:      model.ChangeLevelCorrected,
				UserID:    st.UserID,
				Dimension: model.DimensionPtr(d),
				Before:    float64(p.Level),
				After:     float64(want),
				Message:   fmt.Sprintf("%s level corrected from %d to %d", d, p.Level, want),
				At:        now,
			})
			p.Level = want
			p.XP = wantXP
		}
		if st.TotalXP != total {
			out = append(out, model.Change{
				Type:    model.ChangeLevelCorrected,
				UserID:  st.UserID,
				Subject: "total_xp",
				Before:  float64(st.TotalXP),
				After:   float64(total),
				Message: "lifetime XP reconciled with dimensions",
				At:      now,
			})
			st.TotalXP = total
		}
		if idx := LevelForXP(st.TotalXP); idx > st.PermanentIndex {
			out = append(out, model.Change{
				Type:    model.ChangePermanentIndexUp,
				UserID:  st.UserID,
				Before:  float64(st.PermanentIndex),
				After:   float64(idx),
				Message: fmt.Sprintf("permanent index corrected to %d", idx),
				At:      now,
			})
			st.PermanentIndex = idx
		}
		if overall := OverallRating(st, s.weights); overall != st.OverallRating {
			if c, ok := s.recomputeOverall(st, now); ok {
				out = append(out, c)
			}
		}
		return out, nil
	})
	return changes, err
}

// ApplyBadgeReward grants a badge's tier reward: XP without streak multiplier
// to the badge dimension (split evenly across all dimensions when unscoped)
// and the tier's bonus rating. A reward already granted for the badge is a
// no-op, so a failed grant can be retried.
func (s *ProgressionService) ApplyBadgeReward(ctx context.Context, userID string, def *model.BadgeDefinition, at time.Time) (int64, []model.Change, error) {
	reward, err := def.Tier.Reward()
	if err != nil {
		return 0, nil, err
	}
	var awarded int64
	_, changes, err := s.Mutate(ctx, userID, func(st *model.ProgressionState, now time.Time) ([]model.Change, error) {
		if st.BadgeRewarded(def.ID) {
			return nil, nil
		}
		var out []model.Change
		source := "badge:" + def.ID
		if st.RewardedBadges == nil {
			st.RewardedBadges = make(map[string]time.Time)
		}
		st.RewardedBadges[def.ID] = at
		st.LifetimeBadges++
		st.LastBadgeUnlockAt = timePtr(at)

		dims := model.AllDimensions
		if def.Dimension != nil {
			dims = []model.Dimension{*def.Dimension}
		}
		share := reward.XP / int64(len(dims))
		rem := reward.XP % int64(len(dims))
		for i, d := range dims {
			amount := share
			if int64(i) < rem {
				amount++
			}
			a := s.applyXP(st, d, amount, 1.0, source, at)
			awarded += a.Awarded
			out = append(out, a.Changes...)
		}

		for _, d := range dims {
			out = append(out, s.applyRatingChange(st, d, reward.BonusRating, "badge", at).Changes...)
		}

		out = append(out, model.Change{
			Type:      model.ChangeBadgeUnlocked,
			UserID:    userID,
			Dimension: def.Dimension,
			Subject:   def.ID,
			After:     float64(reward.XP),
			Message:   fmt.Sprintf("badge unlocked: %s (%s)", def.Name, def.Tier),
			At:        at,
		})
		return out, nil
	})
	return awarded, changes, err
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
