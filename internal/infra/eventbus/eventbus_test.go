package eventbus

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return evt
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestBus_PublishReachesEverySubscriber(t *testing.T) {
	t.Parallel()
	bus := New(nil)
	first := bus.Subscribe("chat.turn.completed")
	second := bus.Subscribe("chat.turn.completed")

	bus.Publish("chat.turn.completed", 42)

	for i, ch := range []<-chan Event{first, second} {
		evt := receive(t, ch)
		if evt.Topic != "chat.turn.completed" || evt.Payload != 42 {
			t.Errorf("subscriber %d: got %+v", i, evt)
		}
	}
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	t.Parallel()
	bus := New(nil)
	turns := bus.Subscribe("chat.turn.completed")
	other := bus.Subscribe("quota.topped_up")

	bus.Publish("chat.turn.completed", "turn")
	receive(t, turns)

	select {
	case evt := <-other:
		t.Errorf("unexpected event on other topic: %+v", evt)
	default:
	}
}

func TestBus_FullBufferDropsWithoutBlocking(t *testing.T) {
	t.Parallel()
	bus := New(nil)
	_ = bus.Subscribe("overflow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize+10; i++ {
			bus.Publish("overflow", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Publish blocked on a full buffer")
	}
	if got := bus.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d; want 10", got)
	}
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	t.Parallel()
	bus := New(nil)
	ch := bus.Subscribe("chat.turn.completed")

	bus.Close()
	bus.Close()
	bus.Publish("chat.turn.completed", "late")

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Close")
	}
	if _, ok := <-bus.Subscribe("chat.turn.completed"); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}
