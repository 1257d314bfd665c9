package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// outputs are authenticated by token, not origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub tracks one connected client per audio output and routes player
// status reports to subscribers.
type Hub struct {
	// Registered clients keyed by output ID.
	clients map[string]*Client

	// Player status subscribers keyed by output ID.
	subscribers map[string]map[uint64]func(entities.PlayerEvent)
	nextSubID   uint64

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run has returned.
	done chan struct{}

	// Mutex for thread-safe access to clients and subscribers
	mu sync.RWMutex

	validator *MessageValidator
	logger    *zap.Logger
}

var _ repositories.AudioOutputs = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[uint64]func(entities.PlayerEvent)),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		validator:   NewMessageValidator(),
		logger:      logger,
	}
}

// Run starts the hub's main loop. Every client is disconnected when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.outputID]; ok {
				close(old.send)
				h.logger.Info("Replacing output client", zap.String("outputID", client.outputID))
			}
			h.clients[client.outputID] = client
			h.mu.Unlock()
			h.logger.Info("Output registered", zap.String("outputID", client.outputID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.outputID]; ok && current == client {
				delete(h.clients, client.outputID)
				close(client.send)
				h.logger.Info("Output unregistered", zap.String("outputID", client.outputID))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for outputID, client := range h.clients {
				delete(h.clients, outputID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Output hub stopped")
			return
		}
	}
}

// Connected reports whether a client is attached for outputID
func (h *Hub) Connected(outputID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[outputID]
	return ok
}

// ConnectedOutputs returns the IDs of every attached output
func (h *Hub) ConnectedOutputs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// Device returns the playback device for outputID. The output does not
// need to be connected yet.
func (h *Hub) Device(outputID string) repositories.PlaybackDevice {
	return &OutputDevice{hub: h, outputID: outputID}
}

// Subscribe registers fn for player status reports of outputID
func (h *Hub) Subscribe(outputID string, fn func(entities.PlayerEvent)) func() {
	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	if h.subscribers[outputID] == nil {
		h.subscribers[outputID] = make(map[uint64]func(entities.PlayerEvent))
	}
	h.subscribers[outputID][id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers[outputID], id)
		if len(h.subscribers[outputID]) == 0 {
			delete(h.subscribers, outputID)
		}
	}
}

func (h *Hub) dispatch(outputID string, event entities.PlayerEvent) {
	h.mu.RLock()
	fns := make([]func(entities.PlayerEvent), 0, len(h.subscribers[outputID]))
	for _, fn := range h.subscribers[outputID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	if len(fns) == 0 {
		h.logger.Debug("No subscriber for player status",
			zap.String("outputID", outputID),
			zap.String("status", string(event.Status)))
		return
	}

	for _, fn := range fns {
		fn(event)
	}
}

// sendTo queues message for the client of outputID
func (h *Hub) sendTo(outputID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[outputID]
	if !ok {
		return repositories.ErrOutputNotConnected
	}

	select {
	case client.send <- payload:
		return nil
	default:
		return fmt.Errorf("output %s send buffer full", outputID)
	}
}

// OutputDevice drives one output through the hub
type OutputDevice struct {
	hub      *Hub
	outputID string
}

// Play sends a play command for resource
func (d *OutputDevice) Play(resource entities.AudioResource) error {
	return d.hub.sendTo(d.outputID, CreatePlayMessage(resource))
}

// Stop sends a forced stop command
func (d *OutputDevice) Stop() error {
	return d.hub.sendTo(d.outputID, CreateStopMessage())
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Output ID for this client
	outputID string

	logger *zap.Logger
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated output ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, outputID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		outputID: outputID,
		logger:   logger.With(zap.String("outputID", outputID)),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return fmt.Errorf("output hub stopped")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			continue
		}

		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes incoming messages from the output
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid output message", zap.Error(err))
		c.reply(CreateErrorMessage(ErrorCodeInvalidMessage, "message rejected", err.Error()))
		return
	}

	switch msg := msg.(type) {
	case *PlayerStatusMessage:
		c.logger.Debug("Player status",
			zap.String("status", string(msg.Status)),
			zap.String("resourceID", msg.ResourceID))
		c.hub.dispatch(c.outputID, entities.PlayerEvent{
			Status:     msg.Status,
			ResourceID: msg.ResourceID,
		})
	case *PingMessage:
		c.reply(CreatePongMessage(msg.Data))
	}
}

// reply queues a message for this client only
func (c *Client) reply(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to encode reply", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if c.hub.clients[c.outputID] != c {
		return
	}

	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Dropping reply, send buffer full")
	}
}
