package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"friendclub-backend/internal/signaling"
	"friendclub-backend/pkg/constants"
	"friendclub-backend/pkg/errors"
	"friendclub-backend/pkg/logger"
	"friendclub-backend/pkg/metrics"
	"friendclub-backend/pkg/response"
)

// HubConfig configures the signaling hub
type HubConfig struct {
	MaxConnections  int
	AllowedOrigins  []string
	RequireAuth     bool
	RefreshInterval time.Duration
}

// SignalingHub owns the signaling event loop. Every signaling.Service call
// happens on the Run goroutine; readers and timers post work to it.
type SignalingHub struct {
	// Channels
	register   chan *SignalingClient
	unregister chan *SignalingClient
	inbound    chan *inboundMessage
	inbox      chan func()
	done       chan struct{}

	clients map[*SignalingClient]bool
	svc     *signaling.Service // loop-owned, set by Run

	allowedOrigins map[string]bool
	allowAnyOrigin bool
	requireAuth    bool
	refresh        time.Duration
	upgrader       websocket.Upgrader
	metrics        *metrics.Metrics

	// Concurrency limit: maxConnections is the maximum number of concurrent WebSocket connections
	maxConnections int
	// Semaphore for limiting concurrent connections
	semaphore chan struct{}
}

// SignalingClient represents a WebSocket client for signaling
type SignalingClient struct {
	hub    *SignalingHub
	conn   *websocket.Conn
	send   chan []byte
	state  *signaling.Conn
	closed bool // loop-owned
	log    *zap.Logger
}

// Envelope is the wire format of every frame in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type inboundMessage struct {
	client *SignalingClient
	event  string
	data   json.RawMessage
}

// NewSignalingHub creates a hub; call Run to start the loop
func NewSignalingHub(cfg HubConfig, m *metrics.Metrics) *SignalingHub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1000
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = constants.PresenceRefreshInterval
	}

	h := &SignalingHub{
		register:       make(chan *SignalingClient),
		unregister:     make(chan *SignalingClient),
		inbound:        make(chan *inboundMessage, 256),
		inbox:          make(chan func(), 256),
		done:           make(chan struct{}),
		clients:        make(map[*SignalingClient]bool),
		allowedOrigins: make(map[string]bool),
		requireAuth:    cfg.RequireAuth,
		refresh:        cfg.RefreshInterval,
		metrics:        m,
		maxConnections: cfg.MaxConnections,
		semaphore:      make(chan struct{}, cfg.MaxConnections),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			h.allowAnyOrigin = true
			continue
		}
		h.allowedOrigins[origin] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Post schedules f on the loop. It is dropped once the loop has stopped.
func (h *SignalingHub) Post(f func()) {
	select {
	case h.inbox <- f:
	case <-h.done:
	}
}

// Run drives the loop until ctx is cancelled, then disconnects every client
func (h *SignalingHub) Run(ctx context.Context, svc *signaling.Service) {
	h.svc = svc
	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.metrics.SetWebSocketConnections(len(h.clients))
			svc.Connect(client.state)

		case client := <-h.unregister:
			h.drop(svc, client)

		case msg := <-h.inbound:
			if h.clients[msg.client] {
				svc.Dispatch(msg.client.state, msg.event, msg.data)
			}

		case f := <-h.inbox:
			f()

		case <-ticker.C:
			svc.RefreshPresence()

		case <-ctx.Done():
			for client := range h.clients {
				h.drop(svc, client)
			}
			close(h.done)
			return
		}
	}
}

func (h *SignalingHub) drop(svc *signaling.Service, client *SignalingClient) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	svc.Disconnect(client.state)
	client.closed = true
	close(client.send)
	h.metrics.SetWebSocketConnections(len(h.clients))
}

// Snapshot returns the loop's current counts
func (h *SignalingHub) Snapshot(ctx context.Context) (signaling.Stats, error) {
	var stats signaling.Stats
	err := h.query(ctx, func() { stats = h.svc.Stats() })
	return stats, err
}

// OnlineUsers returns the registered user names as seen by the loop
func (h *SignalingHub) OnlineUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := h.query(ctx, func() { users = h.svc.OnlineUsers() })
	return users, err
}

func (h *SignalingHub) query(ctx context.Context, f func()) error {
	result := make(chan struct{})
	select {
	case h.inbox <- func() { f(); close(result) }:
	case <-h.done:
		return errors.ServiceUnavailableError("Signaling loop stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-result:
		return nil
	case <-h.done:
		return errors.ServiceUnavailableError("Signaling loop stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SignalingHub) checkOrigin(r *http.Request) bool {
	if h.allowAnyOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Reject empty origins - require explicit origin for security
		return false
	}
	return h.allowedOrigins[origin]
}

// ServeWS upgrades the request and serves the connection until it closes.
// The principal set by OptionalAuth, if any, is attached to the connection.
func (h *SignalingHub) ServeWS(c *gin.Context) {
	principal := principalFrom(c)
	if h.requireAuth && principal == nil {
		response.Unauthorized(c, "Authentication required")
		return
	}

	// Acquire semaphore to limit concurrent connections
	select {
	case h.semaphore <- struct{}{}:
		defer func() { <-h.semaphore }()
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.ServiceUnavailable(c, "Server at capacity, please try again later")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	userName := ""
	if principal != nil {
		userName = principal.UserName
	}
	client := &SignalingClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, constants.WebSocketSendBuffer),
		log:  logger.ForConnection(connID, userName),
	}
	client.state = signaling.NewConn(connID, client, principal)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func principalFrom(c *gin.Context) *signaling.Principal {
	val, ok := c.Get("user_id")
	if !ok {
		return nil
	}
	userID, ok := val.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return nil
	}
	return &signaling.Principal{UserID: userID.String(), UserName: c.GetString("username")}
}

// Emit queues an outbound event. It runs on the loop and never blocks: a
// client whose buffer is full loses the message and is disconnected.
func (c *SignalingClient) Emit(event string, payload any) {
	if c.closed {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("Failed to marshal outbound event", zap.String("event", event), zap.Error(err))
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		c.log.Error("Failed to marshal envelope", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case c.send <- frame:
		c.hub.metrics.RecordEvent(event, "out")
	default:
		c.hub.metrics.RecordDroppedMessage()
		c.log.Warn("Send buffer full, closing slow connection", zap.String("event", event))
		c.conn.Close()
	}
}

// readPump reads frames until the connection fails, then unregisters
func (c *SignalingClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("WebSocket connection closed", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.log.Debug("Invalid frame from WebSocket", zap.Error(err))
			c.hub.Post(func() {
				c.Emit("error", map[string]any{
					"event":   env.Event,
					"code":    errors.ErrCodeInvalidInput,
					"message": "Frames must be JSON objects with an event field",
				})
			})
			continue
		}

		c.hub.metrics.RecordEvent(env.Event, "in")
		select {
		case c.hub.inbound <- &inboundMessage{client: c, event: env.Event, data: env.Data}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
