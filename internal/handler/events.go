package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// EventsHandler handles SSE change streaming
type EventsHandler struct {
	hub *service.ChangeHub
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *service.ChangeHub) *EventsHandler {
	return &EventsHandler{
		hub: hub,
	}
}

// Stream handles GET /v1/users/{userId}/events
// This endpoint streams the user's change records and daily reports as SSE
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		WriteError(w, model.NewBadRequestError("user ID required"))
		return
	}

	// Check if the client supports SSE
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, model.NewInternalError("streaming not supported"))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// streams outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	subscriberID := uuid.New().String()

	sub := h.hub.Subscribe(userID, subscriberID)
	defer h.hub.Unsubscribe(userID, subscriberID)

	// Send initial connection event
	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\":\"%s\"}\n\n", subscriberID)
	flusher.Flush()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			fmt.Fprint(w, event.Format())
			flusher.Flush()

		case <-sub.Done:
			return

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}
