package session

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// HostCommand is a directive pushed to the checkout surface over the bridge
type HostCommand struct {
	Command string   `json:"command"`
	URL     string   `json:"url,omitempty"`
	Message string   `json:"message,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Host command names
const (
	CommandNavigate     = "navigate"
	CommandLaunch       = "launch"
	CommandOpenExternal = "open_external"
	CommandAdvisory     = "advisory"
	CommandOutcome      = "outcome"
)

const sessionChannelPrefix = "checkout:session:"

var (
	bridgeConnectionsGauge  = expvar.NewInt("bridge_connections")
	bridgeCommandsSentTotal = expvar.NewInt("bridge_commands_sent_total")
	bridgeCommandsDropped   = expvar.NewInt("bridge_commands_dropped_total")
)

// Hub manages bridge connections with Redis Pub/Sub so a command issued on
// one server instance reaches a surface connected to another.
type Hub struct {
	// Local connections (this server instance only)
	connections map[uuid.UUID]map[*BridgeConn]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *BridgeConn
	unregister chan *BridgeConn

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a bridge hub. A nil Redis client degrades to
// single-instance local delivery.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*BridgeConn]bool),
		redis:       redisClient,
		register:    make(chan *BridgeConn),
		unregister:  make(chan *BridgeConn),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, sessionChannelPrefix+"*")
	}

	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.SessionID] == nil {
				h.connections[conn.SessionID] = make(map[*BridgeConn]bool)
			}
			h.connections[conn.SessionID][conn] = true
			h.mu.Unlock()
			bridgeConnectionsGauge.Add(1)
			log.Debug().Str("session_id", conn.SessionID.String()).Msg("Bridge connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.SessionID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					bridgeConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.SessionID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("session_id", conn.SessionID.String()).Msg("Bridge disconnected")
		}
	}
}

// runRedisSubscriber forwards commands published by other instances to
// locally connected surfaces
func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			if len(msg.Channel) <= len(sessionChannelPrefix) ||
				msg.Channel[:len(sessionChannelPrefix)] != sessionChannelPrefix {
				continue
			}
			sessionID, err := uuid.Parse(msg.Channel[len(sessionChannelPrefix):])
			if err != nil {
				continue
			}
			h.sendLocal(sessionID, []byte(msg.Payload))
		}
	}
}

// Register adds a bridge connection
func (h *Hub) Register(conn *BridgeConn) {
	select {
	case h.register <- conn:
	case <-h.ctx.Done():
	}
}

// Unregister removes a bridge connection
func (h *Hub) Unregister(conn *BridgeConn) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// Send delivers a host command to the session's surface on any instance
func (h *Hub) Send(sessionID uuid.UUID, cmd HostCommand) {
	data, err := json.Marshal(cmd)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal host command")
		return
	}

	if h.redis != nil {
		channel := sessionChannelPrefix + sessionID.String()
		if err := h.redis.Publish(h.ctx, channel, data).Err(); err != nil {
			log.Error().Err(err).Str("channel", channel).Msg("Redis publish failed")
			// Fallback to local delivery
			h.sendLocal(sessionID, data)
		}
		return
	}

	h.sendLocal(sessionID, data)
}

func (h *Hub) sendLocal(sessionID uuid.UUID, data []byte) {
	// The lock is held across the whole loop: Run mutates the inner map
	// and closes Send channels under the write lock
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.connections[sessionID]
	if !ok {
		return
	}

	for conn := range conns {
		select {
		case conn.Send <- data:
			bridgeCommandsSentTotal.Add(1)
		default:
			// Buffer full, skip this command
			bridgeCommandsDropped.Add(1)
			log.Warn().Str("session_id", sessionID.String()).Msg("Bridge send buffer full")
		}
	}
}

// ConnectionCount returns the number of local bridge connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
