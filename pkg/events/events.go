package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/flagstage/pkg/metrics"
)

// EventType represents the type of event
type EventType string

const (
	// Reboot readiness triggers
	EventBootCompleted    EventType = "boot.completed"
	EventRebootAlarm      EventType = "reboot.triggered"
	EventEscrowCaptured   EventType = "escrow.captured"
	EventNetworkAvailable EventType = "network.available"

	// Outcomes
	EventRebootDecision EventType = "reboot.decision"
	EventStagedApplied  EventType = "staged.applied"
	EventFlagsChanged   EventType = "flags.changed"
)

// Event represents something that happened on the device
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// NewEvent builds an event with a fresh ID
func NewEvent(eventType EventType, message string, metadata map[string]string) *Event {
	return &Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]*subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// subscription is the broker side of a Subscriber. A queued subscription
// buffers without bound and is fed by its own goroutine, so broadcast never
// waits on it and never drops for it.
type subscription struct {
	types  map[EventType]bool
	queued bool

	mu      sync.Mutex
	pending []*Event
	wake    chan struct{}
	done    chan struct{}
}

func (s *subscription) accepts(t EventType) bool {
	return s.types == nil || s.types[t]
}

func (s *subscription) push(event *Event) {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	event := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return event
}

const (
	queueSize      = 100
	subscriberSize = 50
)

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]*subscription),
		eventCh:     make(chan *Event, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a subscription to every event type. Events that find
// its buffer full are dropped and counted.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberSize)
	b.subscribers[sub] = &subscription{}
	return sub
}

// SubscribeTypes creates a subscription that only receives the given types
// and never drops them. Use it for events whose loss would stall the
// receiver. The channel is closed on Unsubscribe or when the broker stops.
func (b *Broker) SubscribeTypes(types ...EventType) Subscriber {
	s := &subscription{
		types:  make(map[EventType]bool, len(types)),
		queued: true,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, t := range types {
		s.types[t] = true
	}
	sub := make(Subscriber)

	b.mu.Lock()
	b.subscribers[sub] = s
	b.mu.Unlock()

	go b.feed(sub, s)
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subscribers[sub]
	if !ok {
		return
	}
	delete(b.subscribers, sub)
	if s.queued {
		// feed owns the channel
		close(s.done)
		return
	}
	close(sub)
}

// Publish queues an event for every subscriber. It blocks while the queue
// is full and returns without delivering once the broker is stopped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, s := range b.subscribers {
		if !s.accepts(event.Type) {
			continue
		}
		if s.queued {
			s.push(event)
			continue
		}
		select {
		case sub <- event:
		default:
			metrics.EventsDroppedTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}
}

// feed moves queued events to a SubscribeTypes channel in order
func (b *Broker) feed(sub Subscriber, s *subscription) {
	defer close(sub)
	for {
		event := s.pop()
		if event == nil {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			case <-b.stopCh:
				return
			}
		}
		select {
		case sub <- event:
		case <-s.done:
			return
		case <-b.stopCh:
			return
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
