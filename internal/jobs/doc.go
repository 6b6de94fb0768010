// Package jobs runs the daily maintenance pipeline and the background loops
// that keep derived progression data fresh.
//
// # Daily Pipeline
//
// DailyScheduler runs nine jobs in a fixed order for one user and calendar
// date:
//
//	streak_check → rating_regression → dimension_snapshot → badge_check →
//	level_recalculation → analytics_aggregation → semantic_extraction →
//	correlation_computation → cache_cleanup
//
// Checks that look at "yesterday" use the day before the run date, so a run
// for 2026-03-05 breaks streaks without activity on 2026-03-04.
//
// A date runs at most once per user. The run ledger (RunHistoryRepository)
// is written after every job has been attempted; a second run for the same
// date returns an empty, skipped report. A failing or panicking job is
// recorded in the report and the remaining jobs still run. A cancelled
// context leaves no ledger entry, so the date can be retried.
//
// # Catch-up
//
// CatchUp replays missed days oldest first, capped at MaxCatchUpDays. Each
// day sees the state left by the previous one, so regression compounds. A
// user without any recorded run gets today's run only.
//
// # Background Loops
//
//   - DailyTrigger: checks every interval whether a run is due
//   - AggregatorRefresher: recomputes the wellness index every interval
//
// Both follow the same Start/Stop/RunOnce shape:
//
//	trigger := jobs.NewDailyTrigger(jobs.DailyTriggerConfig{
//	    Scheduler: scheduler,
//	    Interval:  15 * time.Minute,
//	    Logger:    logger,
//	})
//	trigger.Start()
//	defer trigger.Stop()
//
// # Error Handling
//
// Jobs log errors but don't crash the application.
package jobs
