package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/forgo/progression/internal/jobs"
	"github.com/forgo/progression/internal/model"
)

// SchedulerHandler exposes manual daily-pipeline runs
type SchedulerHandler struct {
	scheduler *jobs.DailyScheduler
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(scheduler *jobs.DailyScheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// Run handles POST /v1/users/{userId}/scheduler/run?date=YYYY-MM-DD
// Without a date the pipeline runs for today. A date already processed
// returns the empty, skipped report.
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	var (
		report *model.DailyCronReport
		err    error
	)
	if v := r.URL.Query().Get("date"); v != "" {
		date, perr := model.ParseDateKey(v, h.scheduler.Today().Location())
		if perr != nil {
			WriteError(w, model.NewValidationError([]model.FieldError{{Field: "date", Message: "must be YYYY-MM-DD"}}))
			return
		}
		report, err = h.scheduler.RunForDate(r.Context(), userID, date)
	} else {
		report, err = h.scheduler.RunNow(r.Context(), userID)
	}
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "daily run"))
		return
	}

	WriteData(w, http.StatusOK, report, userLinks(userID, "", "history", "snapshots"))
}

// CatchUp handles POST /v1/users/{userId}/scheduler/catch-up
func (h *SchedulerHandler) CatchUp(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	reports, err := h.scheduler.CatchUp(r.Context(), userID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "catch-up"))
		return
	}
	if reports == nil {
		reports = []*model.DailyCronReport{}
	}

	WriteCollection(w, http.StatusOK, reports, nil, nil)
}

// History handles GET /v1/users/{userId}/scheduler/history?limit=
func (h *SchedulerHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, model.NewValidationError([]model.FieldError{{Field: "limit", Message: "must be a non-negative integer"}}))
			return
		}
		limit = n
	}

	entries, err := h.scheduler.History(r.Context(), userID, limit)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "run history"))
		return
	}
	if entries == nil {
		entries = []*model.RunHistoryEntry{}
	}

	WriteCollection(w, http.StatusOK, entries, limitPage(limit, len(entries)), userLinks(userID, "/scheduler/history"))
}
