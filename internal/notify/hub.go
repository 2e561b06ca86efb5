// Package notify fans committed store changes out to websocket
// subscribers. The engine never consumes these events; they exist for the
// UI tier.
package notify

import (
	"context"
	"sync"

	"alpharoyale/internal/core"
)

// Envelope is the wire frame for one change event.
type Envelope struct {
	Type string      `json:"type"`
	Data core.Change `json:"data"`
}

// TypeChange is the only frame type v1 emits.
const TypeChange = "change"

// client is one websocket subscriber. The send channel is buffered; a
// subscriber that cannot drain it gets evicted rather than stalling the
// broadcast loop.
type client struct {
	id     string
	send   chan Envelope
	mu     sync.Mutex
	closed bool
}

func newClient(id string) *client {
	return &client{
		id:   id,
		send: make(chan Envelope, 256),
	}
}

// trySend queues an envelope without blocking. False means the client is
// slow or closed.
func (c *client) trySend(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub owns the subscriber set and the broadcast loop. It implements
// core.Notifier: the store gateway publishes into it after every
// successful mutation.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Envelope
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     core.ILogger
}

// NewHub creates a hub. Run must be started for events to flow.
func NewHub(logger core.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.WithField("component", "notify_hub"),
	}
}

// Publish implements core.Notifier. It never blocks: when the broadcast
// buffer is full the event is dropped, which is acceptable for a
// change-notification side channel.
func (h *Hub) Publish(change core.Change) {
	env := Envelope{Type: TypeChange, Data: change}
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn("Broadcast buffer full, dropping change", "table", change.Table)
	}
}

// Run drives registration and broadcast until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			subscriberGauge.Set(float64(total))
			h.logger.Info("Subscriber registered", "client_id", c.id, "total", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			subscriberGauge.Set(float64(total))
			h.logger.Info("Subscriber unregistered", "client_id", c.id, "total", total)

		case env := <-h.broadcast:
			h.mu.RLock()
			subscribers := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				subscribers = append(subscribers, c)
			}
			h.mu.RUnlock()

			for _, c := range subscribers {
				if !c.trySend(env) {
					// slow client: evict instead of stalling the loop
					select {
					case h.unregister <- c:
					default:
					}
				}
			}
		}
	}
}

// SubscriberCount returns the current number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NopNotifier discards all changes. Used by tests and matchctl, where no
// subscriber exists.
type NopNotifier struct{}

// Publish implements core.Notifier.
func (NopNotifier) Publish(core.Change) {}
