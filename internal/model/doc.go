// Package model defines domain entities and data structures for the progression engine.
//
// The model package contains the struct definitions shared by every layer:
// per-dimension progress, the overall progression state, streaks, the badge
// catalog types, evaluation contexts, typed change records, and the reports
// produced by the daily scheduler.
//
// # Domain Entities
//
// Core domain entities include:
//
//   - Dimension: one of six fixed life-area categories
//   - DimensionProgress: level, XP and skill rating of a single dimension
//   - ProgressionState: the single persisted record per user (permanent index,
//     overall rating, dimensions, streaks, lifetime totals)
//   - StreakRecord: consecutive-day counter for one streak type
//   - BadgeDefinition: static catalog entry with typed requirements
//   - DailyCronReport: result of one daily maintenance run
//
// # Requirements
//
// Badge requirements are a closed set of typed variants implementing the
// Requirement interface. Consumers switch on the concrete type:
//
//	switch r := req.(type) {
//	case *model.CountRequirement:
//	    ...
//	case *model.StreakRequirement:
//	    ...
//	}
//
// # Error Types
//
// Sentinel errors for the engine's error taxonomy live in errors.go together
// with RFC 9457 Problem Details used by the HTTP surface.
package model
