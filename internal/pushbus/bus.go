// Package pushbus is the realtime fan-out primitive: clients join opaque
// rooms, publishers broadcast events to rooms. Each client has a bounded
// outbox; when it is full the oldest event is dropped, so a slow or dead
// client never blocks a publisher.
package pushbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultOutboxSize is the per-client outbox capacity.
const DefaultOutboxSize = 64

// Bus errors.
var (
	ErrClientClosed  = errors.New("push client closed")
	ErrUnknownClient = errors.New("unknown push client")
)

// Event is one published message.
type Event struct {
	Room    string    `json:"room"`
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// BusConfig holds configuration for the push bus.
type BusConfig struct {
	// Logger for bus operations.
	Logger zerolog.Logger

	// OutboxSize is the per-client outbox capacity (default 64).
	OutboxSize int
}

// Bus is the room-keyed publish/subscribe hub.
type Bus struct {
	logger     zerolog.Logger
	outboxSize int

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	drops atomic.Int64
}

// NewBus creates a push bus.
func NewBus(cfg BusConfig) *Bus {
	size := cfg.OutboxSize
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Bus{
		logger:     cfg.Logger,
		outboxSize: size,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
	}
}

// Connect registers a client connection and returns its receive handle.
// Connecting an existing ID replaces the old connection.
func (b *Bus) Connect(clientID string) *Client {
	c := &Client{
		id:     clientID,
		bus:    b,
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	if old, ok := b.clients[clientID]; ok {
		old.close()
		b.leaveAllLocked(old)
	}
	b.clients[clientID] = c
	b.mu.Unlock()

	return c
}

// Disconnect removes a client and its room memberships.
func (b *Bus) Disconnect(clientID string) {
	b.mu.Lock()
	c, ok := b.clients[clientID]
	if ok {
		delete(b.clients, clientID)
		b.leaveAllLocked(c)
	}
	b.mu.Unlock()

	if ok {
		c.close()
	}
}

// Join adds a client to a room.
func (b *Bus) Join(clientID, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[clientID]
	if !ok {
		return ErrUnknownClient
	}
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		b.rooms[room] = members
	}
	members[clientID] = c
	return nil
}

// Leave removes a client from a room.
func (b *Bus) Leave(clientID, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if members, ok := b.rooms[room]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
}

// Publish fans an event out to every client joined to the room. Publish never
// blocks: full outboxes drop their oldest event and the drop is logged.
func (b *Bus) Publish(room, eventType string, payload any) {
	event := Event{Room: room, Type: eventType, Payload: payload, At: time.Now()}

	b.mu.RLock()
	members := make([]*Client, 0, len(b.rooms[room]))
	for _, c := range b.rooms[room] {
		members = append(members, c)
	}
	b.mu.RUnlock()

	for _, c := range members {
		if dropped := c.enqueue(event, b.outboxSize); dropped {
			b.drops.Add(1)
			b.logger.Warn().
				Str("client", c.id).
				Str("room", room).
				Str("event_type", eventType).
				Msg("outbox full, dropped oldest event")
		}
	}
}

// Drops returns the total number of dropped events.
func (b *Bus) Drops() int64 {
	return b.drops.Load()
}

// RoomSize returns the number of clients joined to a room.
func (b *Bus) RoomSize(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

func (b *Bus) leaveAllLocked(c *Client) {
	for room, members := range b.rooms {
		if members[c.id] == c {
			delete(members, c.id)
			if len(members) == 0 {
				delete(b.rooms, room)
			}
		}
	}
}

// Client is one connected receiver. Events are delivered in publish order.
type Client struct {
	id  string
	bus *Bus

	mu     sync.Mutex
	queue  []Event
	closed bool
	notify chan struct{}
}

// ID returns the client identifier.
func (c *Client) ID() string {
	return c.id
}

// enqueue appends an event, dropping the oldest when the outbox is at
// capacity. Returns whether a drop occurred.
func (c *Client) enqueue(event Event, capacity int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	dropped := false
	if len(c.queue) >= capacity {
		c.queue = c.queue[1:]
		dropped = true
	}
	c.queue = append(c.queue, event)

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Next blocks until an event is available, the context is done, or the client
// is closed.
func (c *Client) Next(ctx context.Context) (Event, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			event := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return event, nil
		}
		if c.closed {
			c.mu.Unlock()
			return Event{}, ErrClientClosed
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-c.notify:
		}
	}
}

// Pending returns the number of queued events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}
