// Package realtime pushes change events to websocket clients so dashboards
// refresh without polling.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// clientBuffer is the per-connection send queue. A client that cannot
// drain it loses events rather than stalling the broadcast.
const clientBuffer = 32

// ClientMessage is an inbound subscription change from a client.
type ClientMessage struct {
	Action      string   `json:"action"` // "subscribe" or "unsubscribe"
	Collections []string `json:"collections"`
}

// Client is one connected websocket peer.
type Client struct {
	ID          string
	Collections []string
	Send        chan []byte
}

// Hub fans change events out to websocket clients keyed by collection.
// It holds one upstream broker subscription regardless of client count.
type Hub struct {
	broker events.Broker
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
}

func NewHub(broker events.Broker, logger *logging.Logger) *Hub {
	if broker == nil {
		panic("realtime: broker is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		broker:  broker,
		logger:  logger.Component("realtime"),
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Run consumes the broker feed until ctx is cancelled. It subscribes to
// every collection once; per-client filtering happens locally.
func (h *Hub) Run(ctx context.Context) error {
	ch, cancel, err := h.broker.Subscribe(ctx,
		events.CollectionPatients,
		events.CollectionConsultations,
		events.CollectionClinicians,
		events.CollectionAvailability,
	)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			h.broadcast(ev)
		}
	}
}

// Register adds a client with its initial collections. Empty means all.
func (h *Hub) Register(client *Client) {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if client.Send == nil {
		client.Send = make(chan []byte, clientBuffer)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	for _, collection := range client.Collections {
		h.addLocked(client, collection)
	}
}

// Unregister drops the client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	for _, collection := range client.Collections {
		h.removeLocked(client, collection)
	}
	delete(h.all, client)
	close(client.Send)
}

// Apply handles an inbound subscription change.
func (h *Hub) Apply(client *Client, msg ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, collection := range msg.Collections {
			if !contains(client.Collections, collection) {
				client.Collections = append(client.Collections, collection)
				h.addLocked(client, collection)
			}
		}
	case "unsubscribe":
		remaining := client.Collections[:0]
		for _, collection := range client.Collections {
			if contains(msg.Collections, collection) {
				h.removeLocked(client, collection)
				continue
			}
			remaining = append(remaining, collection)
		}
		client.Collections = remaining
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) broadcast(ev events.ChangeEventV1) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal change event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.all {
		// No explicit collections means the client wants everything.
		if len(client.Collections) > 0 && !contains(client.Collections, ev.Collection) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

func (h *Hub) addLocked(client *Client, collection string) {
	if h.clients[collection] == nil {
		h.clients[collection] = make(map[*Client]struct{})
	}
	h.clients[collection][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, collection string) {
	if subscribers, ok := h.clients[collection]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, collection)
		}
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
