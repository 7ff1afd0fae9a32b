// Package hub fans sensor and alert messages out to live subscribers.
// Delivery is best effort and at most once: nothing is buffered for
// disconnected clients and a slow subscriber only loses its own
// messages, never stalls the publisher.
package hub

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
)

// Well-known channel names
const (
	ChannelAllAlerts = "alerts:all"
)

// SensorChannel names the live telemetry stream for a device
func SensorChannel(deviceID string) string {
	return fmt.Sprintf("device:%s:sensor", deviceID)
}

// AlertChannel names the alert stream for a device
func AlertChannel(deviceID string) string {
	return fmt.Sprintf("device:%s:alert", deviceID)
}

// StatusChannel names the status stream for a device
func StatusChannel(deviceID string) string {
	return fmt.Sprintf("device:%s:status", deviceID)
}

// Message is the wire format delivered to subscribers
type Message struct {
	Type      string      `json:"type"` // sensor, alert, status
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Conn is one subscriber connection. The hub owns the subscription
// state; the transport (WebSocket pump or test) drains Receive().
type Conn struct {
	ID string

	hub  *Hub
	send chan []byte

	mu       sync.Mutex
	channels map[string]struct{}
	closed   bool
}

// Receive returns the connection's outbound message stream. The channel
// is closed when the connection is disconnected.
func (c *Conn) Receive() <-chan []byte {
	return c.send
}

const shardCount = 16

// shard holds a slice of the channel → subscriber-set map so that
// publishes on unrelated channels never contend on one lock.
type shard struct {
	mu       sync.RWMutex
	channels map[string]map[*Conn]struct{}
}

// Hub maintains channel subscriptions and delivers published messages
type Hub struct {
	shards     [shardCount]*shard
	sendBuffer int
}

// New creates a hub; sendBuffer is each connection's outbound capacity
func New(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	h := &Hub{sendBuffer: sendBuffer}
	for i := range h.shards {
		h.shards[i] = &shard{channels: make(map[string]map[*Conn]struct{})}
	}
	return h
}

func (h *Hub) shardFor(channel string) *shard {
	f := fnv.New32a()
	f.Write([]byte(channel))
	return h.shards[f.Sum32()%shardCount]
}

// Connect registers a new connection with no subscriptions
func (h *Hub) Connect() *Conn {
	c := &Conn{
		ID:       uuid.New().String(),
		hub:      h,
		send:     make(chan []byte, h.sendBuffer),
		channels: make(map[string]struct{}),
	}
	metrics.HubConnections.Inc()
	return c
}

// Subscribe adds the connection to each named channel. Channels are
// created lazily on first subscriber.
func (h *Hub) Subscribe(c *Conn, channels []string) {
	for _, name := range channels {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if _, ok := c.channels[name]; ok {
			c.mu.Unlock()
			continue
		}
		c.channels[name] = struct{}{}
		c.mu.Unlock()

		s := h.shardFor(name)
		s.mu.Lock()
		subs := s.channels[name]
		if subs == nil {
			subs = make(map[*Conn]struct{})
			s.channels[name] = subs
		}
		subs[c] = struct{}{}
		s.mu.Unlock()

		metrics.HubSubscriptions.Inc()
	}
}

// Unsubscribe removes the connection from each named channel. A channel
// with no subscribers left is removed.
func (h *Hub) Unsubscribe(c *Conn, channels []string) {
	for _, name := range channels {
		c.mu.Lock()
		if _, ok := c.channels[name]; !ok {
			c.mu.Unlock()
			continue
		}
		delete(c.channels, name)
		c.mu.Unlock()

		h.removeFromChannel(c, name)
		metrics.HubSubscriptions.Dec()
	}
}

func (h *Hub) removeFromChannel(c *Conn, name string) {
	s := h.shardFor(name)
	s.mu.Lock()
	if subs, ok := s.channels[name]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(s.channels, name)
		}
	}
	s.mu.Unlock()
}

// Disconnect releases all of the connection's subscriptions and closes
// its outbound stream. Safe to call more than once.
func (h *Hub) Disconnect(c *Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	c.channels = nil
	c.mu.Unlock()

	for _, name := range names {
		h.removeFromChannel(c, name)
		metrics.HubSubscriptions.Dec()
	}
	close(c.send)
	metrics.HubConnections.Dec()
}

// Publish delivers the message to every current subscriber of the
// channel. A full subscriber buffer drops this message for that
// subscriber only, preserving the order of what is already buffered.
func (h *Hub) Publish(channel string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log := logger.WithComponent("hub")
		log.Error().Err(err).Str("channel", channel).Msg("failed to marshal message")
		return
	}

	s := h.shardFor(channel)
	s.mu.RLock()
	subs := s.channels[channel]
	conns := make([]*Conn, 0, len(subs))
	for c := range subs {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			continue
		}
		select {
		case c.send <- payload:
			metrics.HubMessagesPublished.WithLabelValues(msg.Type).Inc()
		default:
			// Drop newest for this subscriber only
			metrics.HubMessagesDropped.Inc()
		}
		c.mu.Unlock()
	}
}

// SubscriberCount returns the current number of subscribers on a channel
func (h *Hub) SubscriberCount(channel string) int {
	s := h.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[channel])
}
