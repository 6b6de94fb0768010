package handler

import (
	"net/http"
	"time"

	"github.com/forgo/progression/internal/jobs"
	"github.com/forgo/progression/internal/service"
)

// RouterConfig holds everything the API routes are served from
type RouterConfig struct {
	Progression *service.ProgressionService
	Badges      *service.BadgeService
	Aggregator  *service.DimensionAggregator
	Analyzer    *service.CorrelationAnalyzer
	Query       *service.QueryService
	Scheduler   *jobs.DailyScheduler
	Hub         *service.ChangeHub
	Store       Pinger
	Version     string
	Now         func() time.Time
}

// NewRouter registers every API route on a new mux
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	progressionHandler := NewProgressionHandler(ProgressionHandlerConfig{
		Progression: cfg.Progression,
		Aggregator:  cfg.Aggregator,
	})
	badgeHandler := NewBadgeHandler(cfg.Badges)
	queryHandler := NewQueryHandler(cfg.Query)
	schedulerHandler := NewSchedulerHandler(cfg.Scheduler)
	correlationHandler := NewCorrelationHandler(cfg.Analyzer, cfg.Now)
	eventsHandler := NewEventsHandler(cfg.Hub)
	healthHandler := NewHealthHandler(cfg.Store, cfg.Version)

	// Health check endpoint
	mux.HandleFunc("GET /health", healthHandler.Health)

	// Progression endpoints
	mux.HandleFunc("GET /v1/users/{userId}/progression", progressionHandler.GetState)
	mux.HandleFunc("POST /v1/users/{userId}/xp", progressionHandler.AwardXP)
	mux.HandleFunc("POST /v1/users/{userId}/activities", progressionHandler.RecordActivity)
	mux.HandleFunc("POST /v1/users/{userId}/streaks/{streakType}/freeze", progressionHandler.GrantFreeze)
	mux.HandleFunc("GET /v1/users/{userId}/changes", progressionHandler.ListChanges)

	// Badge endpoints
	mux.HandleFunc("GET /v1/users/{userId}/badges", badgeHandler.List)
	mux.HandleFunc("GET /v1/users/{userId}/badges/earned", badgeHandler.Earned)
	mux.HandleFunc("GET /v1/users/{userId}/badges/{badgeId}", badgeHandler.Get)

	// Level-system queries
	mux.HandleFunc("GET /v1/query-types", queryHandler.ListTypes)
	mux.HandleFunc("GET /v1/users/{userId}/query/{queryType}", queryHandler.Query)
	mux.HandleFunc("GET /v1/users/{userId}/snapshots", queryHandler.Snapshots)

	// Daily pipeline
	mux.HandleFunc("POST /v1/users/{userId}/scheduler/run", schedulerHandler.Run)
	mux.HandleFunc("POST /v1/users/{userId}/scheduler/catch-up", schedulerHandler.CatchUp)
	mux.HandleFunc("GET /v1/users/{userId}/scheduler/history", schedulerHandler.History)

	// Correlations
	mux.HandleFunc("POST /v1/users/{userId}/correlations/analyze", correlationHandler.Analyze)

	// SSE change stream
	mux.HandleFunc("GET /v1/users/{userId}/events", eventsHandler.Stream)

	return mux
}
