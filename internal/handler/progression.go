package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// ProgressionHandler handles XP, activity and state endpoints
type ProgressionHandler struct {
	progression *service.ProgressionService
	aggregator  *service.DimensionAggregator
}

// ProgressionHandlerConfig holds dependencies for the progression handler
type ProgressionHandlerConfig struct {
	Progression *service.ProgressionService
	Aggregator  *service.DimensionAggregator
}

// NewProgressionHandler creates a new progression handler
func NewProgressionHandler(cfg ProgressionHandlerConfig) *ProgressionHandler {
	return &ProgressionHandler{
		progression: cfg.Progression,
		aggregator:  cfg.Aggregator,
	}
}

// ProgressionResponse is the state of a user together with the latest index
type ProgressionResponse struct {
	State         *model.ProgressionState `json:"state"`
	WellnessIndex *model.WellnessIndex    `json:"wellness_index,omitempty"`
}

// AwardXPRequest is the body of POST /v1/users/{userId}/xp
type AwardXPRequest struct {
	Dimension string `json:"dimension"`
	Amount    int64  `json:"amount"`
	Source    string `json:"source,omitempty"`
}

// RecordActivityRequest is the body of POST /v1/users/{userId}/activities
type RecordActivityRequest struct {
	ID         string             `json:"id,omitempty"`
	Type       string             `json:"type"`
	Dimension  string             `json:"dimension,omitempty"`
	Title      string             `json:"title,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	OccurredAt *time.Time         `json:"occurred_at,omitempty"`
}

// GetState handles GET /v1/users/{userId}/progression
func (h *ProgressionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	st, err := h.progression.State(r.Context(), userID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "load progression"))
		return
	}

	resp := ProgressionResponse{State: st}
	if h.aggregator != nil {
		if idx, ok := h.aggregator.Current(userID); ok {
			resp.WellnessIndex = idx
		} else if idx, err := h.aggregator.Compute(r.Context(), userID); err == nil {
			resp.WellnessIndex = idx
		}
	}

	WriteData(w, http.StatusOK, resp, userLinks(userID, "/progression", "badges", "changes", "events", "snapshots"))
}

// AwardXP handles POST /v1/users/{userId}/xp
func (h *ProgressionHandler) AwardXP(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	var req AwardXPRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	dim, err := model.ParseDimension(req.Dimension)
	if err != nil {
		WriteError(w, MapServiceError(err))
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "api"
	}

	award, err := h.progression.AwardXP(r.Context(), userID, dim, req.Amount, source)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "award xp"))
		return
	}

	WriteData(w, http.StatusOK, award, userLinks(userID, "", "progression"))
}

// RecordActivity handles POST /v1/users/{userId}/activities
func (h *ProgressionHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	var req RecordActivityRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		WriteError(w, model.NewValidationError([]model.FieldError{{Field: "type", Message: "activity type is required"}}))
		return
	}

	activity := &model.Activity{
		ID:      req.ID,
		Type:    req.Type,
		Title:   req.Title,
		Metrics: req.Metrics,
	}
	if req.Dimension != "" {
		dim, err := model.ParseDimension(req.Dimension)
		if err != nil {
			WriteError(w, MapServiceError(err))
			return
		}
		activity.Dimension = model.DimensionPtr(dim)
	}
	if req.OccurredAt != nil {
		activity.OccurredAt = *req.OccurredAt
	}

	result, err := h.progression.RecordActivity(r.Context(), userID, activity)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "record activity"))
		return
	}

	WriteData(w, http.StatusCreated, result, userLinks(userID, "", "progression"))
}

// GrantFreeze handles POST /v1/users/{userId}/streaks/{streakType}/freeze
func (h *ProgressionHandler) GrantFreeze(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}
	typ := model.StreakType(r.PathValue("streakType"))
	if !typ.Valid() {
		WriteError(w, model.NewValidationError([]model.FieldError{{Field: "streakType", Message: "unknown streak type"}}))
		return
	}

	rec, err := h.progression.GrantFreeze(r.Context(), userID, typ)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "grant freeze"))
		return
	}

	WriteData(w, http.StatusOK, rec, nil)
}

// ListChanges handles GET /v1/users/{userId}/changes?from=&to=
// Bounds are RFC 3339 timestamps; the default window is the last 24 hours.
func (h *ProgressionHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	to := h.progression.Now()
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, model.NewValidationError([]model.FieldError{{Field: "from", Message: "must be an RFC 3339 timestamp"}}))
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, model.NewValidationError([]model.FieldError{{Field: "to", Message: "must be an RFC 3339 timestamp"}}))
			return
		}
		to = t
	}

	changes, err := h.progression.Changes(r.Context(), userID, from, to)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list changes"))
		return
	}
	if changes == nil {
		changes = []model.Change{}
	}

	WriteCollection(w, http.StatusOK, changes, nil, nil)
}
