package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/model"
	redisclient "github.com/podpairer/server/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 32
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	ParticipantID string
	Events        chan Event
	Done          chan struct{}
}

// PubSub is the slice of the Redis client the broker needs.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// subscription is what the broker reads from an open Redis subscription.
type subscription interface {
	Channel(opts ...goredis.ChannelOption) <-chan *goredis.Message
	Close() error
}

// Broker relays pod events between instances through Redis pub/sub and
// fans them out to the participant's local SSE connections.
type Broker struct {
	redis     PubSub
	subscribe func(ctx context.Context, channel string) subscription
	clients   map[string]map[*Client]bool // participantID -> set of clients
	listeners map[string]context.CancelFunc
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	return newBroker(redisClient)
}

func newBroker(ps PubSub) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis: ps,
		subscribe: func(ctx context.Context, channel string) subscription {
			return ps.Subscribe(ctx, channel)
		},
		clients:   make(map[string]map[*Client]bool),
		listeners: make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (b *Broker) Subscribe(participantID string) *Client {
	client := &Client{
		ParticipantID: participantID,
		Events:        make(chan Event, clientBufferSize),
		Done:          make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[participantID] == nil {
		b.clients[participantID] = make(map[*Client]bool)
		listenCtx, stop := context.WithCancel(b.ctx)
		b.listeners[participantID] = stop
		go b.subscribeToRedis(listenCtx, participantID)
	}
	b.clients[participantID][client] = true
	clientCount := len(b.clients[participantID])
	b.mu.Unlock()

	log.Info().
		Str("participantId", participantID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.ParticipantID]; ok {
		if _, ok := clients[client]; !ok {
			return
		}
		delete(clients, client)
		close(client.Done)

		// The last connection owns the Redis subscription.
		if len(clients) == 0 {
			delete(b.clients, client.ParticipantID)
			if stop, ok := b.listeners[client.ParticipantID]; ok {
				stop()
				delete(b.listeners, client.ParticipantID)
			}
		}

		log.Info().
			Str("participantId", client.ParticipantID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, participantID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, redisclient.PodChannel(participantID), data).Err()
}

// PublishPodEvent sends event to every recipient's channel. It keeps going
// past individual failures and returns the last one.
func (b *Broker) PublishPodEvent(ctx context.Context, recipients []string, event model.PodEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var lastErr error
	for _, id := range recipients {
		if err := b.Publish(ctx, id, Event{Type: string(event.Type), Data: data}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (b *Broker) subscribeToRedis(ctx context.Context, participantID string) {
	channel := redisclient.PodChannel(participantID)
	pubsub := b.subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("participantId", participantID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok || ctx.Err() != nil {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(participantID, event)
		}
	}
}

func (b *Broker) broadcast(participantID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[participantID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("participantId", participantID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.listeners = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(participantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[participantID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
