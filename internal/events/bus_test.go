package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Type: EventTradeExecuted, Symbol: "BTCUSDT", Time: time.Now()})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventTradeExecuted, ev.Type)
			assert.Equal(t, "BTCUSDT", ev.Symbol)
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

// TestBus_SlowSubscriberNeverBlocks checks that a full subscriber buffer
// drops events instead of stalling the publisher.
func TestBus_SlowSubscriberNeverBlocks(t *testing.T) {
	bus := NewBus()
	slow := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: EventTradeRejected})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The one buffered event is still deliverable.
	assert.Equal(t, EventTradeRejected, (<-slow).Type)
}
