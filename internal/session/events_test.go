package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_ReplaysBacklogToLateSubscribers(t *testing.T) {
	h := newHub(2)

	h.publish(Event{Kind: EventProgress, Message: "one"})
	h.publish(Event{Kind: EventProgress, Message: "two"})
	h.publish(Event{Kind: EventProgress, Message: "three"})

	events, cancel := h.subscribe()
	defer cancel()

	first := <-events
	second := <-events

	assert.Equal(t, "two", first.Message)
	assert.Equal(t, "three", second.Message)
	assert.Equal(t, uint64(2), first.Seq)
	assert.False(t, first.At.IsZero())

	h.publish(Event{Kind: EventClosed})

	live := <-events
	assert.Equal(t, EventClosed, live.Kind)
	assert.Equal(t, uint64(4), live.Seq)
}

func TestHub_NeverBlocksOnSlowSubscriber(t *testing.T) {
	h := newHub(1)

	events, cancel := h.subscribe()
	defer cancel()

	for range subscriberBuffer + 50 {
		h.publish(Event{Kind: EventStats})
	}

	assert.Len(t, events, subscriberBuffer)
	assert.Len(t, h.history(), 1)
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := newHub(0)

	events, cancel := h.subscribe()
	h.close()

	_, ok := <-events
	assert.False(t, ok)

	cancel()
	h.close()

	h.publish(Event{Kind: EventProgress})
	assert.Empty(t, h.history())

	late, _ := h.subscribe()
	_, ok = <-late
	require.False(t, ok, "subscribing to a closed hub yields a closed channel")
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	h := newHub(0)

	events, cancel := h.subscribe()
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)

	h.publish(Event{Kind: EventProgress})
	assert.Len(t, h.history(), 1)
}
