// Package diag carries the observability surface: structured logging
// setup, the internal event bus, Prometheus metrics, the HTTP status
// server, and the optional MQTT telemetry publisher.
package diag

import (
	"fmt"
	"sync"
	"time"
)

// EventKind classifies bus events.
type EventKind int

const (
	EventCommandAccepted EventKind = iota
	EventCommandRejected
	EventThermalFault
	EventHomingFailure
	EventEmergencyStop
	EventPrintStarted
	EventPrintComplete
)

func (k EventKind) String() string {
	switch k {
	case EventCommandAccepted:
		return "command-accepted"
	case EventCommandRejected:
		return "command-rejected"
	case EventThermalFault:
		return "thermal-fault"
	case EventHomingFailure:
		return "homing-failure"
	case EventEmergencyStop:
		return "emergency-stop"
	case EventPrintStarted:
		return "print-started"
	case EventPrintComplete:
		return "print-complete"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one fault or lifecycle notification fanned out to
// subscribers.
type Event struct {
	Kind   EventKind
	Source string // task or channel that raised it
	Detail string
	At     time.Time
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// that stops draining its channel loses events rather than stalling the
// producer, which may be a control loop.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel with the given buffer and a cancel
// function that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has room.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
