package gateway

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu        sync.Mutex
	active    map[uuid.UUID]func(event string, payload []byte)
	cancelled int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{active: make(map[uuid.UUID]func(string, []byte))}
}

func (f *fakeSubscriber) SubscribeStream(streamID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[streamID] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.active, streamID)
		f.cancelled++
	}, nil
}

func (f *fakeSubscriber) deliver(streamID uuid.UUID, event string, payload []byte) {
	f.mu.Lock()
	handler := f.active[streamID]
	f.mu.Unlock()
	if handler != nil {
		handler(event, payload)
	}
}

func newHubClient(streamID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New().String(),
		StreamID: streamID,
		send:     make(chan WSMessage, 8),
	}
}

func TestHubFanoutReachesAllClients(t *testing.T) {
	streamID := uuid.New()
	sub := newFakeSubscriber()
	hub := NewHub(sub, nil)

	a := newHubClient(streamID)
	b := newHubClient(streamID)
	other := newHubClient(uuid.New())
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	hub.Fanout(streamID, "viewer_count_updated", []byte(`{"current_viewers":2,"peak_viewers":2}`))

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			assert.Equal(t, "viewer_count_updated", msg.Event)
		default:
			t.Fatalf("client %s received nothing", c.ID)
		}
	}
	assert.Empty(t, other.send)
}

func TestHubSubscriptionLifecycle(t *testing.T) {
	streamID := uuid.New()
	sub := newFakeSubscriber()
	hub := NewHub(sub, nil)

	a := newHubClient(streamID)
	b := newHubClient(streamID)
	hub.Register(a)
	hub.Register(b)
	assert.Len(t, sub.active, 1, "one subscription per stream")
	assert.Equal(t, 2, hub.ClientCount(streamID))

	hub.Unregister(a)
	assert.Equal(t, 0, sub.cancelled, "subscription stays while clients remain")

	hub.Unregister(b)
	assert.Equal(t, 1, sub.cancelled, "last client closes the subscription")
	assert.Equal(t, 0, hub.ClientCount(streamID))
}

func TestHubDeliversSubscribedEvents(t *testing.T) {
	streamID := uuid.New()
	sub := newFakeSubscriber()
	hub := NewHub(sub, nil)

	c := newHubClient(streamID)
	hub.Register(c)

	sub.deliver(streamID, "stream_ended", []byte(`{"duration":120}`))

	select {
	case msg := <-c.send:
		require.Equal(t, "stream_ended", msg.Event)
		assert.JSONEq(t, `{"duration":120}`, string(msg.Data))
	default:
		t.Fatal("no message delivered")
	}
}

func TestHubSkipsFullBuffers(t *testing.T) {
	streamID := uuid.New()
	hub := NewHub(nil, nil)

	c := &Client{ID: "slow", StreamID: streamID, send: make(chan WSMessage)}
	hub.Register(c)

	// must not block even though nobody drains the channel
	hub.Fanout(streamID, "reaction", []byte(`{"reaction_type":"heart"}`))
}
