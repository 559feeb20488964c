package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOne(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestBusProjectFilter(t *testing.T) {
	bus := NewBus()
	chA, cancelA := bus.Subscribe("alpha", nil)
	defer cancelA()
	chAll, cancelAll := bus.Subscribe(ProjectAll, nil)
	defer cancelAll()

	bus.PublishJobProgress("alpha", JobProgress{JobID: "1", Progress: 10})
	bus.PublishJobProgress("beta", JobProgress{JobID: "2", Progress: 20})

	got := recvOne(t, chA)
	assert.Equal(t, "alpha", got.Project)

	first := recvOne(t, chAll)
	second := recvOne(t, chAll)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, []string{first.Project, second.Project})

	select {
	case extra := <-chA:
		t.Fatalf("alpha subscriber saw foreign message: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusTopicFilter(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(ProjectAll, []Topic{TopicError})
	defer cancel()

	bus.PublishJobProgress("p", JobProgress{JobID: "1"})
	bus.PublishError("p", ErrorEvent{Component: "ingest", Message: "boom"})

	got := recvOne(t, ch)
	require.Equal(t, TopicError, got.Type)
	payload, ok := got.Data.(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "boom", payload.Message)
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(ProjectAll, nil)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.PublishJobProgress("p", JobProgress{JobID: "x", Progress: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(ProjectAll, nil)
	cancel()
	_, open := <-ch
	assert.False(t, open)
	// Double cancel is safe.
	cancel()
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(ProjectAll, nil)
	defer cancel()
	bus.Publish(Message{Type: TopicNodeStatus, Data: NodeStatus{Component: "queue", Status: "up"}})
	got := recvOne(t, ch)
	assert.False(t, got.Timestamp.IsZero())
}
