package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgo/progression/internal/model"
)

// BadgeService evaluates badges for users and durably records unlocks
type BadgeService struct {
	engine      *BadgeEngine
	builder     EvaluationContextBuilder
	unlocks     BadgeUnlockRepository
	progression *ProgressionService
	logger      *zap.Logger
	now         func() time.Time
}

// BadgeServiceConfig holds configuration for the badge service
type BadgeServiceConfig struct {
	Engine      *BadgeEngine
	Builder     EvaluationContextBuilder
	Unlocks     BadgeUnlockRepository
	Progression *ProgressionService
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewBadgeService creates a new badge service
func NewBadgeService(cfg BadgeServiceConfig) *BadgeService {
	s := &BadgeService{
		engine:      cfg.Engine,
		builder:     cfg.Builder,
		unlocks:     cfg.Unlocks,
		progression: cfg.Progression,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Engine returns the rule engine
func (s *BadgeService) Engine() *BadgeEngine {
	return s.engine
}

// Progress lists badge progress for a user, hiding unearned secret badges
func (s *BadgeService) Progress(ctx context.Context, userID string) ([]model.BadgeProgress, error) {
	ec, err := s.builder.Build(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	return s.engine.Progress(ec, false), nil
}

// Get returns progress for one badge. An unearned secret badge is reported
// as not found.
func (s *BadgeService) Get(ctx context.Context, userID, badgeID string) (*model.BadgeProgress, error) {
	def, err := s.engine.Catalog().Get(badgeID)
	if err != nil {
		return nil, err
	}
	ec, err := s.builder.Build(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	bp := s.engine.Evaluate(def, ec)
	if bp.IsSecret {
		return nil, fmt.Errorf("%w: %s", ErrBadgeNotFound, badgeID)
	}
	return &bp, nil
}

// Earned returns the recorded unlocks of a user
func (s *BadgeService) Earned(ctx context.Context, userID string) ([]*model.BadgeUnlock, error) {
	return s.unlocks.ListUnlocks(ctx, userID)
}

// CheckAndAward evaluates every badge as of asOf, records newly earned ones
// and grants their tier rewards. Passes repeat while unlocks keep enabling
// further badges. Rewards left ungranted by an earlier failed call are
// granted first.
func (s *BadgeService) CheckAndAward(ctx context.Context, userID string, asOf time.Time) ([]*model.BadgeUnlock, []model.Change, error) {
	var unlocked []*model.BadgeUnlock
	changes, errs := s.settleRewards(ctx, userID)

	for pass := 0; pass <= s.engine.Catalog().Len(); pass++ {
		if err := ctx.Err(); err != nil {
			return unlocked, changes, err
		}
		ec, err := s.builder.Build(ctx, userID, asOf)
		if err != nil {
			return unlocked, changes, err
		}
		newly := s.engine.CheckForNewlyEarned(ec)
		if len(newly) == 0 {
			break
		}

		recorded := 0
		for _, def := range newly {
			reward, err := def.Tier.Reward()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			unlock := &model.BadgeUnlock{
				ID:         uuid.NewString(),
				UserID:     userID,
				BadgeID:    def.ID,
				Tier:       def.Tier,
				XPAwarded:  reward.XP,
				UnlockedAt: asOf,
			}
			created, err := s.unlocks.RecordUnlock(ctx, unlock)
			if err != nil {
				errs = append(errs, fmt.Errorf("record unlock %s: %w", def.ID, err))
				continue
			}
			if !created {
				continue
			}
			recorded++
			unlocked = append(unlocked, unlock)

			_, rewardChanges, err := s.progression.ApplyBadgeReward(ctx, userID, def, asOf)
			if err != nil {
				errs = append(errs, fmt.Errorf("reward badge %s: %w", def.ID, err))
				continue
			}
			changes = append(changes, rewardChanges...)
			s.logger.Info("badge unlocked",
				zap.String("user_id", userID),
				zap.String("badge_id", def.ID),
				zap.String("tier", string(def.Tier)))
		}
		if recorded == 0 {
			break
		}
	}
	return unlocked, changes, errors.Join(errs...)
}

// settleRewards grants the tier reward of every recorded unlock whose reward
// is missing from the progression state
func (s *BadgeService) settleRewards(ctx context.Context, userID string) ([]model.Change, []error) {
	recorded, err := s.unlocks.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, []error{fmt.Errorf("list unlocks: %w", err)}
	}
	if len(recorded) == 0 {
		return nil, nil
	}
	st, err := s.progression.State(ctx, userID)
	if err != nil {
		return nil, []error{err}
	}

	var (
		changes []model.Change
		errs    []error
	)
	for _, u := range recorded {
		if u == nil || st.BadgeRewarded(u.BadgeID) {
			continue
		}
		def, err := s.engine.Catalog().Get(u.BadgeID)
		if err != nil {
			// retired from the catalog; nothing to grant
			s.logger.Warn("unlock for unknown badge",
				zap.String("user_id", userID),
				zap.String("badge_id", u.BadgeID))
			continue
		}
		_, rewardChanges, err := s.progression.ApplyBadgeReward(ctx, userID, def, u.UnlockedAt)
		if err != nil {
			errs = append(errs, fmt.Errorf("reward badge %s: %w", u.BadgeID, err))
			continue
		}
		changes = append(changes, rewardChanges...)
		s.logger.Info("granted pending badge reward",
			zap.String("user_id", userID),
			zap.String("badge_id", u.BadgeID))
	}
	return changes, errs
}
