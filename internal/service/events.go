package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/forgo/progression/internal/model"
)

// EventType represents the type of a streamed event
type EventType string

const (
	// EventChange carries one model.Change
	EventChange EventType = "change"

	// EventReport carries a completed model.DailyCronReport
	EventReport EventType = "report"

	// EventHeartbeat keeps idle streams open
	EventHeartbeat EventType = "heartbeat"
)

// Event represents a server-sent event
type Event struct {
	Type   EventType   `json:"type"`
	Data   interface{} `json:"data"`
	UserID string      `json:"-"` // Used for routing, not sent to client
}

// Format returns the SSE formatted string
func (e *Event) Format() string {
	data, _ := json.Marshal(e.Data)
	return "event: " + string(e.Type) + "\ndata: " + string(data) + "\n\n"
}

// Subscriber represents a connected change listener
type Subscriber struct {
	ID     string
	UserID string
	Events chan *Event
	Done   chan struct{}
}

// ChangeListener is a synchronous callback invoked for every published change
type ChangeListener func(change model.Change)

// ChangeHub fans typed change records out to per-user subscribers and
// registered listeners. Publishing never blocks: a full subscriber buffer
// drops the event for that subscriber.
type ChangeHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscriber // userID -> subscriberID -> subscriber
	listeners   []ChangeListener
	heartbeat   *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

// NewChangeHub creates a new change hub. A positive heartbeat interval starts
// a background heartbeat that stops on Close.
func NewChangeHub(heartbeat time.Duration) *ChangeHub {
	hub := &ChangeHub{
		subscribers: make(map[string]map[string]*Subscriber),
		done:        make(chan struct{}),
	}
	if heartbeat > 0 {
		hub.heartbeat = time.NewTicker(heartbeat)
		go hub.sendHeartbeats()
	}
	return hub
}

// Subscribe adds a new subscriber for a user
func (h *ChangeHub) Subscribe(userID, subscriberID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ID:     subscriberID,
		UserID: userID,
		Events: make(chan *Event, 100), // Buffer to prevent blocking
		Done:   make(chan struct{}),
	}

	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[string]*Subscriber)
	}
	h.subscribers[userID][subscriberID] = sub

	return sub
}

// Unsubscribe removes a subscriber
func (h *ChangeHub) Unsubscribe(userID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userSubs, ok := h.subscribers[userID]; ok {
		if sub, ok := userSubs[subscriberID]; ok {
			close(sub.Done)
			close(sub.Events)
			delete(userSubs, subscriberID)
		}
		if len(userSubs) == 0 {
			delete(h.subscribers, userID)
		}
	}
}

// OnChange registers a listener called for every published change
func (h *ChangeHub) OnChange(fn ChangeListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Publish sends changes to listeners and to subscribers of each change's user
func (h *ChangeHub) Publish(changes ...model.Change) {
	if h == nil || len(changes) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, change := range changes {
		for _, fn := range h.listeners {
			fn(change)
		}
		h.send(&Event{Type: EventChange, UserID: change.UserID, Data: change})
	}
}

// PublishReport sends a finished daily report to the report's user
func (h *ChangeHub) PublishReport(report *model.DailyCronReport) {
	if h == nil || report == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.send(&Event{Type: EventReport, UserID: report.UserID, Data: report})
}

// send delivers event without blocking; callers hold at least the read lock
func (h *ChangeHub) send(event *Event) {
	for _, sub := range h.subscribers[event.UserID] {
		select {
		case sub.Events <- event:
			// Event sent successfully
		default:
			// Buffer full, skip this subscriber
		}
	}
}

// sendHeartbeats sends periodic heartbeats to all subscribers
func (h *ChangeHub) sendHeartbeats() {
	for {
		select {
		case <-h.heartbeat.C:
			h.mu.RLock()
			data := map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}
			for userID := range h.subscribers {
				h.send(&Event{Type: EventHeartbeat, UserID: userID, Data: data})
			}
			h.mu.RUnlock()
		case <-h.done:
			return
		}
	}
}

// Close stops the hub and disconnects every subscriber
func (h *ChangeHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.heartbeat != nil {
			h.heartbeat.Stop()
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		for userID, userSubs := range h.subscribers {
			for _, sub := range userSubs {
				close(sub.Done)
				close(sub.Events)
			}
			delete(h.subscribers, userID)
		}
	})
}

// SubscriberCount returns the number of subscribers for a user
func (h *ChangeHub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
