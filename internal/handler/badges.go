package handler

import (
	"net/http"
	"net/url"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// BadgeHandler handles badge progress endpoints
type BadgeHandler struct {
	badges *service.BadgeService
}

// NewBadgeHandler creates a new badge handler
func NewBadgeHandler(badges *service.BadgeService) *BadgeHandler {
	return &BadgeHandler{badges: badges}
}

// List handles GET /v1/users/{userId}/badges
// Unearned secret badges are omitted.
func (h *BadgeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	progress, err := h.badges.Progress(r.Context(), userID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list badges"))
		return
	}
	if progress == nil {
		progress = []model.BadgeProgress{}
	}

	WriteCollection(w, http.StatusOK, progress, nil, userLinks(userID, "/badges", "earned", "progression"))
}

// Get handles GET /v1/users/{userId}/badges/{badgeId}
func (h *BadgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	badgeID := r.PathValue("badgeId")
	if userID == "" || badgeID == "" {
		WriteError(w, model.NewBadRequestError("user ID and badge ID required"))
		return
	}

	bp, err := h.badges.Get(r.Context(), userID, badgeID)
	if err != nil {
		WriteError(w, MapServiceError(err))
		return
	}

	WriteData(w, http.StatusOK, bp, userLinks(userID, "/badges/"+url.PathEscape(badgeID), "badges"))
}

// Earned handles GET /v1/users/{userId}/badges/earned
func (h *BadgeHandler) Earned(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	unlocks, err := h.badges.Earned(r.Context(), userID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list unlocks"))
		return
	}
	if unlocks == nil {
		unlocks = []*model.BadgeUnlock{}
	}

	WriteCollection(w, http.StatusOK, unlocks, nil, nil)
}
