package sse

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podpairer/server/internal/model"
)

type fakePubSub struct {
	mu        sync.Mutex
	published map[string][]string
	subs      map[string][]*fakeSubscription
	failOn    string
}

type fakeSubscription struct {
	ps     *fakePubSub
	ch     chan *goredis.Message
	closed bool
}

func (s *fakeSubscription) Channel(...goredis.ChannelOption) <-chan *goredis.Message {
	return s.ch
}

func (s *fakeSubscription) Close() error {
	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()
	s.closed = true
	return nil
}

func (f *fakePubSub) subscribe(ctx context.Context, channel string) subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{ps: f, ch: make(chan *goredis.Message, 4)}
	if f.subs == nil {
		f.subs = make(map[string][]*fakeSubscription)
	}
	f.subs[channel] = append(f.subs[channel], sub)
	return sub
}

func (f *fakePubSub) openSubscriptions(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs[channel] {
		if !sub.closed {
			n++
		}
	}
	return n
}

func (f *fakePubSub) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewIntCmd(ctx)
	if channel == f.failOn {
		cmd.SetErr(errors.New("publish failed"))
		return cmd
	}
	payload := string(message.([]byte))
	f.published[channel] = append(f.published[channel], payload)
	var receivers int64
	for _, sub := range f.subs[channel] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- &goredis.Message{Channel: channel, Payload: payload}:
			receivers++
		default:
		}
	}
	cmd.SetVal(receivers)
	return cmd
}

func (f *fakePubSub) Subscribe(ctx context.Context, channels ...string) *goredis.PubSub {
	panic("not used")
}

func attach(b *Broker, participantID string) *Client {
	c := &Client{
		ParticipantID: participantID,
		Events:        make(chan Event, 1),
		Done:          make(chan struct{}),
	}
	b.mu.Lock()
	if b.clients[participantID] == nil {
		b.clients[participantID] = make(map[*Client]bool)
	}
	b.clients[participantID][c] = true
	b.mu.Unlock()
	return c
}

func TestBroker_PublishPodEvent(t *testing.T) {
	ps := &fakePubSub{published: make(map[string][]string)}
	b := newBroker(ps)
	defer b.Close()

	event := model.PodEvent{
		Type:   model.PodEventAssigned,
		PodID:  "pod-1",
		Status: model.PodStatusPending,
		At:     time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	}

	t.Run("publishes to every recipient channel", func(t *testing.T) {
		require.NoError(t, b.PublishPodEvent(context.Background(), []string{"a", "b"}, event))

		require.Len(t, ps.published["pods:a"], 1)
		require.Len(t, ps.published["pods:b"], 1)

		var got Event
		require.NoError(t, json.Unmarshal([]byte(ps.published["pods:a"][0]), &got))
		assert.Equal(t, "pod_assigned", got.Type)
		assert.Contains(t, string(got.Data), `"podId":"pod-1"`)
	})

	t.Run("continues past a failing channel", func(t *testing.T) {
		ps.failOn = "pods:c"
		err := b.PublishPodEvent(context.Background(), []string{"c", "d"}, event)
		assert.Error(t, err)
		assert.Len(t, ps.published["pods:d"], 1)
	})
}

func TestBroker_Broadcast(t *testing.T) {
	b := newBroker(&fakePubSub{published: make(map[string][]string)})
	defer b.Close()

	first := attach(b, "p1")
	second := attach(b, "p1")
	other := attach(b, "p2")
	assert.Equal(t, 2, b.ClientCount("p1"))
	assert.Equal(t, 3, b.TotalClients())

	b.broadcast("p1", Event{Type: "pod_confirmed"})
	assert.Equal(t, "pod_confirmed", (<-first.Events).Type)
	assert.Equal(t, "pod_confirmed", (<-second.Events).Type)
	assert.Len(t, other.Events, 0)

	t.Run("drops events for a full buffer", func(t *testing.T) {
		b.broadcast("p2", Event{Type: "one"})
		b.broadcast("p2", Event{Type: "two"})
		assert.Equal(t, "one", (<-other.Events).Type)
	})

	t.Run("unsubscribe closes done once", func(t *testing.T) {
		b.Unsubscribe(first)
		b.Unsubscribe(first)
		_, open := <-first.Done
		assert.False(t, open)
		assert.Equal(t, 1, b.ClientCount("p1"))
	})
}

func TestBroker_Reconnect(t *testing.T) {
	ps := &fakePubSub{published: make(map[string][]string)}
	b := newBroker(ps)
	b.subscribe = ps.subscribe
	defer b.Close()

	openOnP1 := func(n int) func() bool {
		return func() bool { return ps.openSubscriptions("pods:p1") == n }
	}

	first := b.Subscribe("p1")
	require.Eventually(t, openOnP1(1), time.Second, 5*time.Millisecond)

	b.Unsubscribe(first)
	require.Eventually(t, openOnP1(0), time.Second, 5*time.Millisecond, "last client leaving closes the redis subscription")

	second := b.Subscribe("p1")
	require.Eventually(t, openOnP1(1), time.Second, 5*time.Millisecond)

	event := model.PodEvent{Type: model.PodEventConfirmed, PodID: "pod-1", Status: model.PodStatusConfirmed}
	require.NoError(t, b.PublishPodEvent(context.Background(), []string{"p1"}, event))

	select {
	case got := <-second.Events:
		assert.Equal(t, "pod_confirmed", got.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case extra := <-second.Events:
		t.Fatalf("event delivered twice: %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}

	t.Run("second client shares the subscription", func(t *testing.T) {
		third := b.Subscribe("p1")
		assert.Equal(t, 1, ps.openSubscriptions("pods:p1"))
		b.Unsubscribe(third)
		assert.Equal(t, 1, ps.openSubscriptions("pods:p1"))
	})

	t.Run("close stops every subscription", func(t *testing.T) {
		b.Close()
		require.Eventually(t, openOnP1(0), time.Second, 5*time.Millisecond)
		_, open := <-second.Done
		assert.False(t, open)
	})
}
