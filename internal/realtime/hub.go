package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event names pushed over user channels
const (
	EventNotificationNew  = "notification:new"
	EventChatConversation = "chat:conversation"
)

// Envelope is the wire frame for every pushed event
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Channel is one live real-time connection for a user. A user may hold any
// number of concurrent channels (tabs, devices).
type Channel struct {
	UserID uint
	send   chan []byte
}

// Outbox returns the channel the transport layer drains to the connection
func (c *Channel) Outbox() <-chan []byte {
	return c.send
}

// Hub maps user ids to their currently-open channels and fans events out to
// them. It is owned by the transport layer and injected into the services
// that publish, so a clustered pub/sub backend can replace it without
// touching engine or gateway code.
//
// Delivery is fire-and-forget: a publish to a user with no channels is
// dropped, and a channel with a full send queue is skipped. Clients re-fetch
// authoritative state on reconnect, so nothing here needs to be durable.
type Hub struct {
	mu       sync.RWMutex
	channels map[uint]map[*Channel]struct{}
	logger   *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		channels: make(map[uint]map[*Channel]struct{}),
		logger:   logger,
	}
}

// Register opens a new channel for the user and returns it
func (h *Hub) Register(userID uint) *Channel {
	ch := &Channel{
		UserID: userID,
		send:   make(chan []byte, 64),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[userID]
	if !ok {
		set = make(map[*Channel]struct{})
		h.channels[userID] = set
	}
	set[ch] = struct{}{}
	return ch
}

// Unregister removes a channel and closes its outbox. Safe to call once per
// channel; subsequent publishes simply no longer see it.
func (h *Hub) Unregister(ch *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[ch.UserID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.channels, ch.UserID)
	}
	close(ch.send)
}

// HasChannels reports whether the user currently has any open channel
func (h *Hub) HasChannels(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID]) > 0
}

// Publish delivers an event to every open channel of the user. Failures are
// swallowed: the originating write already succeeded durably, and offline
// users pick the change up from the stores on their next fetch.
func (h *Hub) Publish(userID uint, event string, payload interface{}) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to encode realtime event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.channels[userID] {
		select {
		case ch.send <- data:
		default:
			// Slow consumer; it will re-sync on reconnect
			h.logger.Debug("dropped realtime event", zap.Uint("user_id", userID), zap.String("event", event))
		}
	}
}
