package events

import (
	"sync"
	"time"
)

// EventType identifies the kind of pipeline occurrence being published.
type EventType string

const (
	EventTradeExecuted  EventType = "trade_executed"
	EventTradeRejected  EventType = "trade_rejected"
	EventCircuitBreaker EventType = "circuit_breaker"
	EventEmergencyStop  EventType = "emergency_stop"
	EventError          EventType = "error"
)

// Event is a typed occurrence delivered to observers. Fields not
// relevant to the event type are zero.
type Event struct {
	Type         EventType
	Symbol       string
	OrderID      string
	Reason       string
	PositionSize float64
	RiskScore    float64
	Time         time.Time
}

// Bus fans events out to independent observers. Publishing never blocks
// and applies no back-pressure: a subscriber that falls behind loses
// events rather than stalling the emitter.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an observer and returns its delivery channel.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return ch
}

// Publish delivers the event to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
