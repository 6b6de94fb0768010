package repository

import (
	"go.uber.org/zap"

	"github.com/forgo/progression/internal/database"
)

// Repositories bundles every SurrealDB repository so one value satisfies
// the storage interfaces of the services and the batch scheduler
type Repositories struct {
	*StateRepository
	*ActivityRepository
	*ChangeLogRepository
	*BadgeUnlockRepository
	*InsightRepository
	*RunHistoryRepository
	*AnalyticsRepository
}

// NewRepositories creates all repositories over one connection
func NewRepositories(db database.Database, logger *zap.Logger) *Repositories {
	return &Repositories{
		StateRepository:       NewStateRepository(db, logger),
		ActivityRepository:    NewActivityRepository(db, logger),
		ChangeLogRepository:   NewChangeLogRepository(db),
		BadgeUnlockRepository: NewBadgeUnlockRepository(db),
		InsightRepository:     NewInsightRepository(db),
		RunHistoryRepository:  NewRunHistoryRepository(db),
		AnalyticsRepository:   NewAnalyticsRepository(db),
	}
}
