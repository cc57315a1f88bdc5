package events

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flagstage/pkg/metrics"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(NewEvent(EventRebootAlarm, "alarm fired", nil))

	for _, sub := range []Subscriber{first, second} {
		ev := receive(t, sub)
		assert.Equal(t, EventRebootAlarm, ev.Type)
		assert.Equal(t, "alarm fired", ev.Message)
	}
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()
	sub := b.Subscribe()

	b.Publish(&Event{Type: EventBootCompleted})

	ev := receive(t, sub)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNewEventUniqueIDs(t *testing.T) {
	a := NewEvent(EventEscrowCaptured, "", nil)
	b := NewEvent(EventEscrowCaptured, "", nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Stop()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(NewEvent(EventFlagsChanged, "", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "publish blocked on a stopped broker")
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	fast := b.Subscribe()

	dropped := testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues(string(EventRebootDecision)))
	for i := 0; i < subscriberSize+10; i++ {
		b.Publish(NewEvent(EventRebootDecision, "", map[string]string{"n": "x"}))
		receive(t, fast)
	}
	assert.Len(t, slow, cap(slow))
	assert.Equal(t, dropped+10, testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues(string(EventRebootDecision))))
}

func TestSubscribeTypesFiltersAndNeverDrops(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	triggers := b.SubscribeTypes(EventBootCompleted, EventRebootAlarm)

	// A burst far larger than any subscriber buffer, with the trigger last
	for i := 0; i < 4*queueSize; i++ {
		b.Publish(NewEvent(EventFlagsChanged, "", nil))
		if i%50 == 0 {
			b.Publish(NewEvent(EventRebootAlarm, "", nil))
		}
	}
	b.Publish(NewEvent(EventBootCompleted, "", nil))

	for i := 0; i < 8; i++ {
		assert.Equal(t, EventRebootAlarm, receive(t, triggers).Type)
	}
	assert.Equal(t, EventBootCompleted, receive(t, triggers).Type)

	select {
	case ev := <-triggers:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeTypesClosedOnUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.SubscribeTypes(EventEscrowCaptured)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	select {
	case _, open := <-sub:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestSubscribeTypesClosedOnStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	sub := b.SubscribeTypes(EventEscrowCaptured)

	b.Stop()

	select {
	case _, open := <-sub:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}
