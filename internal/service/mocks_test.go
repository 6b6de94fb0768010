package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgo/progression/internal/model"
)

// memStateRepo is an in-memory StateRepository
type memStateRepo struct {
	mu      sync.Mutex
	states  map[string]*model.ProgressionState
	saves   int
	saveErr error
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: make(map[string]*model.ProgressionState)}
}

func (r *memStateRepo) GetState(ctx context.Context, userID string) (*model.ProgressionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return st.Clone(), nil
}

func (r *memStateRepo) SaveState(ctx context.Context, st *model.ProgressionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.states[st.UserID] = st.Clone()
	return nil
}

func (r *memStateRepo) stored(userID string) *model.ProgressionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[userID].Clone()
}

// memActivityRepo is an in-memory ActivityRepository
type memActivityRepo struct {
	mu         sync.Mutex
	activities []*model.Activity
}

func (r *memActivityRepo) AppendActivity(ctx context.Context, a *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.activities = append(r.activities, &cp)
	return nil
}

func (r *memActivityRepo) ListActivities(ctx context.Context, userID string, from, to time.Time) ([]*model.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Activity
	for _, a := range r.activities {
		if a.UserID != userID {
			continue
		}
		if !from.IsZero() && a.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && !a.OccurredAt.Before(to) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// memUnlockRepo is an in-memory BadgeUnlockRepository
type memUnlockRepo struct {
	mu      sync.Mutex
	unlocks map[string]map[string]*model.BadgeUnlock
}

func newMemUnlockRepo() *memUnlockRepo {
	return &memUnlockRepo{unlocks: make(map[string]map[string]*model.BadgeUnlock)}
}

func (r *memUnlockRepo) ListUnlocks(ctx context.Context, userID string) ([]*model.BadgeUnlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BadgeUnlock
	for _, u := range r.unlocks[userID] {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

func (r *memUnlockRepo) RecordUnlock(ctx context.Context, u *model.BadgeUnlock) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unlocks[u.UserID] == nil {
		r.unlocks[u.UserID] = make(map[string]*model.BadgeUnlock)
	}
	if _, ok := r.unlocks[u.UserID][u.BadgeID]; ok {
		return false, nil
	}
	cp := *u
	r.unlocks[u.UserID][u.BadgeID] = &cp
	return true, nil
}

// memInsightRepo is an in-memory InsightRepository
type memInsightRepo struct {
	mu       sync.Mutex
	insights map[string]*model.CorrelationInsight
}

func newMemInsightRepo() *memInsightRepo {
	return &memInsightRepo{insights: make(map[string]*model.CorrelationInsight)}
}

func (r *memInsightRepo) ListInsights(ctx context.Context, userID string) ([]*model.CorrelationInsight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CorrelationInsight
	for _, in := range r.insights {
		if in.UserID != userID {
			continue
		}
		cp := *in
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memInsightRepo) SaveInsight(ctx context.Context, in *model.CorrelationInsight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *in
	r.insights[in.ID] = &cp
	return nil
}

// memChangeLog is an in-memory ChangeLogRepository
type memChangeLog struct {
	mu      sync.Mutex
	changes []model.Change
}

func (r *memChangeLog) AppendChanges(ctx context.Context, changes []model.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
	return nil
}

func (r *memChangeLog) ListChanges(ctx context.Context, userID string, from, to time.Time) ([]model.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Change
	for _, c := range r.changes {
		if c.UserID != userID || c.At.Before(from) || !c.At.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// memHistoryRepo is an in-memory HistoryRepository
type memHistoryRepo struct {
	snapshots []*model.DimensionSnapshot
	analytics map[string]*model.DailyAnalytics
	metrics   []model.DailyMetric
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{analytics: make(map[string]*model.DailyAnalytics)}
}

func (r *memHistoryRepo) ListSnapshots(ctx context.Context, userID, from, to string) ([]*model.DimensionSnapshot, error) {
	var out []*model.DimensionSnapshot
	for _, s := range r.snapshots {
		if s.UserID == userID && s.Date >= from && s.Date <= to {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memHistoryRepo) GetDailyAnalytics(ctx context.Context, userID, date string) (*model.DailyAnalytics, error) {
	row, ok := r.analytics[userID+"/"+date]
	if !ok {
		return nil, model.ErrNotFound
	}
	return row, nil
}

func (r *memHistoryRepo) ListDailyMetrics(ctx context.Context, userID, from, to string) ([]model.DailyMetric, error) {
	var out []model.DailyMetric
	for _, m := range r.metrics {
		if m.UserID == userID && m.Date >= from && m.Date <= to {
			out = append(out, m)
		}
	}
	return out, nil
}

// fixedClock returns a settable clock for tests
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{t: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// testEnv wires services over in-memory stores
type testEnv struct {
	clock       *fixedClock
	states      *memStateRepo
	activities  *memActivityRepo
	unlocks     *memUnlockRepo
	insights    *memInsightRepo
	changeLog   *memChangeLog
	hub         *ChangeHub
	progression *ProgressionService
	badges      *BadgeService
	aggregator  *DimensionAggregator
}

func newTestEnv(now time.Time) *testEnv {
	env := &testEnv{
		clock:      newFixedClock(now),
		states:     newMemStateRepo(),
		activities: &memActivityRepo{},
		unlocks:    newMemUnlockRepo(),
		insights:   newMemInsightRepo(),
		changeLog:  &memChangeLog{},
		hub:        NewChangeHub(0),
	}
	env.progression = NewProgressionService(ProgressionServiceConfig{
		States:     env.states,
		Activities: env.activities,
		ChangeLog:  env.changeLog,
		Hub:        env.hub,
		Location:   time.UTC,
		Now:        env.clock.Now,
	})
	catalog, err := DefaultBadgeCatalog()
	if err != nil {
		panic(err)
	}
	env.badges = NewBadgeService(BadgeServiceConfig{
		Engine: NewBadgeEngine(catalog),
		Builder: NewContextBuilder(ContextBuilderConfig{
			States:     env.progression,
			Activities: env.activities,
			Unlocks:    env.unlocks,
			Location:   time.UTC,
		}),
		Unlocks:     env.unlocks,
		Progression: env.progression,
		Now:         env.clock.Now,
	})
	env.aggregator = NewDimensionAggregator(AggregatorConfig{
		States: env.progression,
		Hub:    env.hub,
		Now:    env.clock.Now,
	})
	return env
}
