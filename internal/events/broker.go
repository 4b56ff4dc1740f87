package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Publisher is the write side of the change feed. Services publish after
// every committed write; publishing never blocks on slow observers.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEventV1) error
}

// Broker fans committed writes out to per-collection subscribers.
type Broker interface {
	Publisher
	// Subscribe delivers events for the given collections until the
	// returned cancel func is called. The channel is dropped, not blocked,
	// when the subscriber falls behind.
	Subscribe(ctx context.Context, collections ...string) (<-chan ChangeEventV1, func(), error)
}

// Stamp fills in the event id and timestamp if the caller left them zero.
func Stamp(event ChangeEventV1) ChangeEventV1 {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

const subscriberBuffer = 64

// MemoryBroker is an in-process broker for dev mode and tests.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[int]*memorySub
	next int
}

type memorySub struct {
	collections map[string]struct{}
	ch          chan ChangeEventV1
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int]*memorySub)}
}

func (b *MemoryBroker) Publish(ctx context.Context, event ChangeEventV1) error {
	event = Stamp(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if _, ok := sub.collections[event.Collection]; !ok {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is not draining; drop rather than stall the writer.
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, collections ...string) (<-chan ChangeEventV1, func(), error) {
	if len(collections) == 0 {
		return nil, nil, fmt.Errorf("events: at least one collection required")
	}

	sub := &memorySub{
		collections: make(map[string]struct{}, len(collections)),
		ch:          make(chan ChangeEventV1, subscriberBuffer),
	}
	for _, c := range collections {
		sub.collections[c] = struct{}{}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

const redisChannelPrefix = "clinic.changes."

// RedisBroker publishes change events over Redis pub/sub so every API
// instance sees writes committed by the others.
type RedisBroker struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisBroker creates a broker over the given Redis client.
func NewRedisBroker(client *redis.Client, logger *logging.Logger) *RedisBroker {
	if client == nil {
		panic("events: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroker{client: client, logger: logger.Component("events")}
}

func (b *RedisBroker) Publish(ctx context.Context, event ChangeEventV1) error {
	event = Stamp(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannelPrefix+event.Collection, payload).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Collection, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, collections ...string) (<-chan ChangeEventV1, func(), error) {
	if len(collections) == 0 {
		return nil, nil, fmt.Errorf("events: at least one collection required")
	}

	channels := make([]string, len(collections))
	for i, c := range collections {
		channels[i] = redisChannelPrefix + c
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("events: subscribe: %w", err)
	}

	out := make(chan ChangeEventV1, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event ChangeEventV1
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case out <- event:
			default:
				b.logger.Warn("subscriber behind, dropping change event", "channel", msg.Channel)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}
