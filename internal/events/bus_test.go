package events_test

import (
	"testing"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/events"
	"github.com/micro-nova/amplipi-preamp/internal/models"
)

func state(addr uint8) models.State {
	st := models.DefaultState(models.Version{Major: 1})
	st.Addr = addr
	return st
}

func TestHubSubscribePublish(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe("test1")

	hub.Publish(state(0x10))

	select {
	case got := <-ch:
		if got.Addr != 0x10 {
			t.Errorf("got addr %#x, want 0x10", got.Addr)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestHubPrimesNewSubscribers(t *testing.T) {
	hub := events.NewHub()
	if _, ok := hub.Latest(); ok {
		t.Fatal("Latest reported a snapshot before any publish")
	}
	hub.Publish(state(0x20))

	ch := hub.Subscribe("late")
	select {
	case got := <-ch:
		if got.Addr != 0x20 {
			t.Errorf("primed addr %#x, want 0x20", got.Addr)
		}
	default:
		t.Fatal("late subscriber not primed")
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe("test-unsub")
	hub.Unsubscribe("test-unsub")

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	hub.Unsubscribe("test-unsub") // no-op
}

func TestHubSlowSubscriberKeepsNewest(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe("slow-reader")

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 20; i++ {
			hub.Publish(state(uint8(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	var last uint8
	for len(ch) > 0 {
		last = (<-ch).Addr
	}
	if last != 20 {
		t.Errorf("last queued addr = %d, want 20", last)
	}
}

func TestHubSubscriberCount(t *testing.T) {
	hub := events.NewHub()
	if n := hub.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	hub.Subscribe("s1")
	hub.Subscribe("s2")
	hub.Subscribe("s2")
	if n := hub.SubscriberCount(); n != 2 {
		t.Errorf("expected 2 subscribers, got %d", n)
	}
	hub.Unsubscribe("s1")
	if n := hub.SubscriberCount(); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}
