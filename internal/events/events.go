// internal/events/events.go
package events

import (
	"sync"
	"time"
)

// Kind names an observable coordinator event.
type Kind string

const (
	EquipmentDisconnect  Kind = "equipmentDisconnect"
	EquipmentError       Kind = "equipmentError"
	StateUpdated         Kind = "stateUpdated"
	DeliveryPhaseChanged Kind = "deliveryPhaseChanged"
	DeliverySucceeded    Kind = "deliverySucceeded"
	DeliveryAborted      Kind = "deliveryAborted"
	DeliveryFailed       Kind = "deliveryFailed"
)

// Event is delivered to observers.
// Payload carries the kind-specific value (state snapshot, delivery receipt, ...).
type Event struct {
	Kind    Kind
	At      time.Time
	Port    string
	Device  string
	DoorKey string
	Attempt string
	Phase   string
	Reason  string
	Err     error
	Payload any
}

// Sink receives events. Emit MUST NOT block the caller for long.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// ---- in-process bus ----

// Subscription is one observer's bounded queue.
type Subscription struct {
	ch    chan Event
	kinds map[Kind]struct{}
	bus   *Bus
}

func (s *Subscription) Channel() <-chan Event { return s.ch }

func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s) }

func (s *Subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus fans events out to subscribers over buffered channels.
// A full subscriber queue drops its oldest event; publishers never block.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
	qLen int
}

// NewBus creates a bus with the given per-subscriber queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 16
	}
	return &Bus{qLen: queueLen}
}

// Subscribe registers an observer for the given kinds (all kinds when empty).
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	sub := &Subscription{
		ch:  make(chan Event, b.qLen),
		bus: b,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// drop oldest if queue full
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- ev
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}
