package core

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe(PlaybackChangedEvent)

	eb.Publish(Event{Type: PlaybackChangedEvent, Payload: "go"})

	select {
	case ev := <-sub:
		if ev.Payload != "go" {
			t.Errorf("payload = %v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe(ScriptChangedEvent)

	eb.Publish(Event{Type: PlaybackChangedEvent})

	select {
	case ev := <-sub:
		t.Errorf("unexpected event %v", ev.Type)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe(ShowLoadedEvent)
	eb.Unsubscribe(sub, ShowLoadedEvent)

	eb.Publish(Event{Type: ShowLoadedEvent})

	select {
	case ev := <-sub:
		t.Errorf("unexpected event %v", ev.Type)
	default:
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	eb := NewEventBus()
	eb.Subscribe(StateChangedEvent) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			eb.Publish(Event{Type: StateChangedEvent, Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestStateCloneIsSnapshot(t *testing.T) {
	st := NewState()
	st.SetShow("warehouse", "shows/warehouse.yaml", "track.mp3")
	st.SetPlayback(true, false)
	st.SetPosition(90*time.Second, 128)
	st.SetActiveEffects(3)
	st.SetRunningScript("sweep.lua")

	snap := st.Clone()
	st.SetPlayback(false, false)
	st.SetRunningScript("")

	if !snap.Playing || snap.ShowName != "warehouse" {
		t.Errorf("snapshot lost values: %+v", snap)
	}
	if snap.Position != 90*time.Second || snap.BPM != 128 {
		t.Errorf("position = %v bpm = %v", snap.Position, snap.BPM)
	}
	if snap.ActiveEffects != 3 || snap.RunningScript != "sweep.lua" {
		t.Errorf("effects = %d script = %q", snap.ActiveEffects, snap.RunningScript)
	}
}
