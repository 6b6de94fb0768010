// Package repository implements the SurrealDB storage backend.
//
// Each repository struct owns one table and satisfies one of the storage
// interfaces declared by the service and jobs packages:
//
//   - StateRepository: progression_state, one checksummed document per user
//   - ActivityRepository: activity, raw user activities
//   - ChangeLogRepository: change_log, append-only change records
//   - BadgeUnlockRepository: badge_unlock, one row per (user, badge)
//   - InsightRepository: correlation_insight
//   - RunHistoryRepository: run_history, the daily run ledger
//   - AnalyticsRepository: dimension_snapshot, daily_analytics, daily_metric
//
// Repositories bundles them over a single connection.
//
// # Query Patterns
//
//   - Parameterized queries with $variable syntax
//   - type::thing() with composite keys for rows that must be unique per
//     (user, date) or (user, badge); a CREATE collision reports
//     database.ErrDuplicate and is treated as "already recorded"
//   - <datetime> casts on RFC 3339 strings for time bounds
//   - AtomicBatch for multi-row writes
//
// Not-found results are reported as model.ErrNotFound. A state document
// whose checksum does not match its payload is reported as
// model.ErrDataIntegrity.
//
// The schema lives in migrations/*.surql.
package repository
