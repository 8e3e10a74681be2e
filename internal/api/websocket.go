package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blakeyoung81/Curtain-Lights/internal/auth"
	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/config"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/logging"
)

// Message types exchanged on the socket.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgAck         = "ack"
	MsgEvent       = "event"
	MsgError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Event channels clients can subscribe to.
const (
	ChannelCelebrationChanged  = "celebration.changed"
	ChannelCelebrationFinished = "celebration.finished"
)

var knownChannels = []string{ChannelCelebrationChanged, ChannelCelebrationFinished}

// ClientMessage is a frame sent by a client.
type ClientMessage struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// ServerMessage is a frame sent to a client. Acks and errors echo the
// client's ID.
type ServerMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// FinishedEvent is the payload of celebration.finished.
type FinishedEvent struct {
	TenantID      string  `json:"tenant_id"`
	DeviceID      string  `json:"device_id"`
	RequestID     string  `json:"request_id"`
	Tier          string  `json:"tier"`
	Outcome       string  `json:"outcome"`
	PlayedSeconds float64 `json:"played_seconds"`
	Restored      bool    `json:"restored"`
	Error         string  `json:"error,omitempty"`
}

func newServerMessage(msgType, id string, payload any) ServerMessage {
	return ServerMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Hub fans celebration events out to connected clients. It is a
// celebration.Observer; each event reaches only clients that subscribed to
// its channel and may see its tenant.
type Hub struct {
	celebration.BaseObserver

	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "tenant_id", c.tenantID, "clients", n)
}

func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Transitioned implements celebration.Observer.
func (h *Hub) Transitioned(t celebration.Transition) {
	h.Broadcast(ChannelCelebrationChanged, t.Status.TenantID, t.Status)
}

// Finished implements celebration.Observer.
func (h *Hub) Finished(r celebration.Report) {
	ev := FinishedEvent{
		TenantID:      r.Binding.TenantID,
		DeviceID:      r.Binding.DeviceID,
		RequestID:     r.Request.ID,
		Tier:          r.Tier.Name,
		Outcome:       string(r.Outcome),
		PlayedSeconds: r.Played.Seconds(),
		Restored:      r.Restored,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	h.Broadcast(ChannelCelebrationFinished, ev.TenantID, ev)
}

// Broadcast sends payload on channel to every eligible client. The client
// set is copied before sending so no client lock is taken under the hub lock.
func (h *Hub) Broadcast(channel, tenantID string, payload any) {
	msg := newServerMessage(MsgEvent, "", payload)
	msg.EventType = channel
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var sent, dropped int
	for _, c := range clients {
		if !c.canSee(tenantID) || !c.subscribed(channel) {
			continue
		}
		if c.enqueue(data) {
			sent++
		} else {
			dropped++
		}
	}
	if sent+dropped > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "tenant_id", tenantID, "recipients", sent, "dropped", dropped)
	}
}

// WSClient is one connected socket and the identity its ticket carried.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	snapshot func() []celebration.Status

	subject  string
	tenantID string
	role     auth.Role

	mu       sync.Mutex
	send     chan []byte
	channels map[string]bool
	closed   bool
}

// canSee reports whether the client may receive events for tenantID.
func (c *WSClient) canSee(tenantID string) bool {
	return !auth.IsTenantScoped(c.role) || c.tenantID == tenantID
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

// enqueue queues data without blocking. It reports false when the client is
// gone or its buffer is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue once; writePump then closes the socket.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(newServerMessage(MsgError, id, map[string]string{"message": message}))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // origins are enforced by the CORS middleware
	},
}

// handleWebSocket upgrades a request carrying a ticket from POST
// /api/v1/ws-ticket. Tickets are single-use.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeUnavailable(w, "websocket hub is not running")
		return
	}

	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		snapshot: s.engine.Active,
		subject:  entry.subject,
		tenantID: entry.tenantID,
		role:     entry.role,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]bool),
	}
	s.hub.register(c)

	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	return time.Duration(cfg.PingInterval) * time.Second, time.Duration(cfg.PongTimeout) * time.Second
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer c.hub.unregister(c)

	ping, pong := keepalive(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame keeps the socket alive.
		extend() //nolint:errcheck // a failed deadline surfaces as a read error
		c.handle(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping, pong := keepalive(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(pong)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case MsgSubscribe, MsgUnsubscribe:
		c.updateSubscriptions(msg)
	case MsgPing:
		c.reply(newServerMessage(MsgPong, msg.ID, nil))
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// updateSubscriptions applies a subscribe or unsubscribe frame. Subscribing
// to celebration.changed is followed by the current status of every active
// celebration the client may see.
func (c *WSClient) updateSubscriptions(msg ClientMessage) {
	if len(msg.Channels) == 0 {
		c.replyError(msg.ID, "channels are required")
		return
	}
	for _, ch := range msg.Channels {
		if !slices.Contains(knownChannels, ch) {
			c.replyError(msg.ID, "unknown channel: "+ch)
			return
		}
	}

	subscribe := msg.Type == MsgSubscribe
	c.mu.Lock()
	for _, ch := range msg.Channels {
		if subscribe {
			c.channels[ch] = true
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	c.reply(newServerMessage(MsgAck, msg.ID, map[string]any{msg.Type + "d": msg.Channels}))

	if subscribe && slices.Contains(msg.Channels, ChannelCelebrationChanged) && c.snapshot != nil {
		for _, st := range c.snapshot() {
			if !c.canSee(st.TenantID) {
				continue
			}
			ev := newServerMessage(MsgEvent, "", st)
			ev.EventType = ChannelCelebrationChanged
			c.reply(ev)
		}
	}
}
