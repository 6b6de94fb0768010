package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/forgo/progression/internal/model"
)

func TestChangeHub_PublishRoutesByUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewChangeHub(0)
	defer hub.Close()

	a := hub.Subscribe("alice", "s1")
	b := hub.Subscribe("bob", "s2")
	assert.Equal(t, 1, hub.SubscriberCount("alice"))

	hub.Publish(model.Change{Type: model.ChangeXPAwarded, UserID: "alice", After: 10})

	select {
	case ev := <-a.Events:
		assert.Equal(t, EventChange, ev.Type)
		change, ok := ev.Data.(model.Change)
		require.True(t, ok)
		assert.Equal(t, model.ChangeXPAwarded, change.Type)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the change")
	}

	select {
	case ev := <-b.Events:
		t.Fatalf("bob received %v", ev)
	default:
	}
}

func TestChangeHub_Listeners(t *testing.T) {
	hub := NewChangeHub(0)
	defer hub.Close()

	var got []model.ChangeType
	hub.OnChange(func(c model.Change) { got = append(got, c.Type) })
	hub.Publish(
		model.Change{Type: model.ChangeStreakBroken, UserID: "u1"},
		model.Change{Type: model.ChangeBadgeUnlocked, UserID: "u2"},
	)
	assert.Equal(t, []model.ChangeType{model.ChangeStreakBroken, model.ChangeBadgeUnlocked}, got)
}

func TestChangeHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewChangeHub(0)
	defer hub.Close()
	hub.Subscribe("u1", "slow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Publish(model.Change{Type: model.ChangeXPAwarded, UserID: "u1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestChangeHub_NilIsSafe(t *testing.T) {
	var hub *ChangeHub
	hub.Publish(model.Change{Type: model.ChangeXPAwarded})
	hub.PublishReport(&model.DailyCronReport{})
}

func TestChangeHub_HeartbeatStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewChangeHub(10 * time.Millisecond)
	sub := hub.Subscribe("u1", "s1")

	select {
	case ev := <-sub.Events:
		assert.Equal(t, EventHeartbeat, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}

	hub.Close()
	hub.Close()
	_, open := <-sub.Done
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount("u1"))
}

func TestChangeHub_Unsubscribe(t *testing.T) {
	hub := NewChangeHub(0)
	defer hub.Close()

	sub := hub.Subscribe("u1", "s1")
	hub.Unsubscribe("u1", "s1")
	hub.Unsubscribe("u1", "s1")
	_, open := <-sub.Events
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount("u1"))
}

func TestEvent_Format(t *testing.T) {
	ev := &Event{Type: EventReport, Data: map[string]int{"jobs": 9}}
	out := ev.Format()
	assert.True(t, strings.HasPrefix(out, "event: report\n"))
	assert.Contains(t, out, `data: {"jobs":9}`)
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}
