package handler

import (
	"net/http"
	"time"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// QueryHandler answers level-system queries
type QueryHandler struct {
	queries *service.QueryService
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// Query handles GET /v1/users/{userId}/query/{queryType}?dimension=
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	var dim *model.Dimension
	if v := r.URL.Query().Get("dimension"); v != "" {
		d, err := model.ParseDimension(v)
		if err != nil {
			WriteError(w, MapServiceError(err))
			return
		}
		dim = model.DimensionPtr(d)
	}

	result, err := h.queries.Query(r.Context(), userID, service.QueryType(r.PathValue("queryType")), dim)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "query"))
		return
	}

	WriteData(w, http.StatusOK, result, nil)
}

// ListTypes handles GET /v1/query-types
func (h *QueryHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	WriteCollection(w, http.StatusOK, service.QueryTypes, nil, nil)
}

// Snapshots handles GET /v1/users/{userId}/snapshots?from=&to=
// Bounds are YYYY-MM-DD and inclusive. Without them the last
// service.DefaultHistoryDays days are listed.
func (h *QueryHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	loc := h.queries.Location()
	to := model.StartOfDay(h.queries.Now(), loc)
	from := to.AddDate(0, 0, -(service.DefaultHistoryDays - 1))

	var fieldErrs []model.FieldError
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := r.URL.Query().Get(bound.name)
		if v == "" {
			continue
		}
		t, err := model.ParseDateKey(v, loc)
		if err != nil {
			fieldErrs = append(fieldErrs, model.FieldError{Field: bound.name, Message: "must be YYYY-MM-DD"})
			continue
		}
		*bound.dst = t
	}
	if len(fieldErrs) == 0 && from.After(to) {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "from", Message: "must not be after to"})
	}
	if len(fieldErrs) > 0 {
		WriteError(w, model.NewValidationError(fieldErrs))
		return
	}

	snaps, err := h.queries.Snapshots(r.Context(), userID, model.DateKey(from, loc), model.DateKey(to, loc))
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "snapshots"))
		return
	}
	if snaps == nil {
		snaps = []*model.DimensionSnapshot{}
	}

	WriteCollection(w, http.StatusOK, snaps, nil, userLinks(userID, "/snapshots", "progression"))
}
