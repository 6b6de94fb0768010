// Package service implements the progression engine.
//
// The service package contains the domain logic: the XP curve, streak
// tracking, per-dimension XP and skill ratings, the wellness index, the badge
// rule engine and the correlation analyzer. Services sit between the HTTP
// handlers, the daily jobs and the storage layer.
//
// # Service Pattern
//
// All services follow a consistent pattern:
//
//   - Constructor function (NewXxxService) accepts a config struct with repository dependencies
//   - A nil logger becomes zap.NewNop() and a nil clock becomes time.Now
//   - Methods take a context and return explicit errors
//   - State-changing methods return typed model.Change records
//
// # Repository Interfaces
//
// Services define their own repository interfaces (StateRepository,
// ActivityRepository, BadgeUnlockRepository, InsightRepository and so on).
// Both the SurrealDB repositories and the SQLite store satisfy them.
//
// # Concurrency
//
// ProgressionService serializes all mutations of one user's state behind a
// per-user lock. Mutations run on a copy which replaces the cached state only
// on success; the lock is never held across storage I/O.
//
// # Error Handling
//
// Errors wrap the model taxonomy and are checked with errors.Is:
//
//	if errors.Is(err, model.ErrNotFound) {
//	    // unknown badge or query type
//	}
//
// # Example Usage
//
//	progression := NewProgressionService(ProgressionServiceConfig{
//	    States:     stateRepo,
//	    Activities: activityRepo,
//	    Hub:        hub,
//	})
//	award, err := progression.AwardXP(ctx, userID, model.DimensionCognitive, 100, "manual")
package service
