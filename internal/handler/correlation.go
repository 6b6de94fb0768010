package handler

import (
	"net/http"
	"time"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// CorrelationHandler runs on-demand correlation analysis
type CorrelationHandler struct {
	analyzer *service.CorrelationAnalyzer
	now      func() time.Time
}

// NewCorrelationHandler creates a new correlation handler
func NewCorrelationHandler(analyzer *service.CorrelationAnalyzer, now func() time.Time) *CorrelationHandler {
	if now == nil {
		now = time.Now
	}
	return &CorrelationHandler{analyzer: analyzer, now: now}
}

// Analyze handles POST /v1/users/{userId}/correlations/analyze
func (h *CorrelationHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), userID, h.now())
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "correlation analysis"))
		return
	}

	WriteData(w, http.StatusOK, result, userLinks(userID, "", "insights"))
}
