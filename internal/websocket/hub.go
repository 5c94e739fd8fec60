package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 << 20

	// Frames waiting to be processed per connection.
	inboundQueue = 16
)

// ErrHubStopped is returned when a connection arrives after shutdown
var ErrHubStopped = errors.New("websocket hub stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ConnectionObserver is told when connections open and close
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients, keyed by connection id.
	clients map[string]*Client

	// Clients that registered a peer id for relaying, keyed by that id.
	peers map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns.
	stopped chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	service  *usecase.AudioService
	observer ConnectionObserver
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub. observer may be nil.
func NewHub(service *usecase.AudioService, observer ConnectionObserver, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		peers:      make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		service:    service,
		observer:   observer,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx is done every client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			if h.observer != nil {
				h.observer.ConnectionOpened()
			}
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("deviceID", client.deviceID))

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for _, client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				h.remove(client)
			}
			h.logger.Info("WebSocket hub stopped", zap.Int("closedClients", len(clients)))
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	delete(h.clients, client.id)
	if client.peerID != "" && h.peers[client.peerID] == client {
		delete(h.peers, client.peerID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.observer != nil {
		h.observer.ConnectionClosed()
	}
	client.close()
	h.logger.Info("Client unregistered",
		zap.String("clientID", client.id),
		zap.String("deviceID", client.deviceID))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Peers returns the registered peer ids in order
func (h *Hub) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	peers := make([]string, 0, len(h.peers))
	for peerID := range h.peers {
		peers = append(peers, peerID)
	}
	sort.Strings(peers)
	return peers
}

// registerPeer routes peerID to client and returns the connection that held
// the id before, if any.
func (h *Hub) registerPeer(peerID string, client *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.peerID != "" && h.peers[client.peerID] == client {
		delete(h.peers, client.peerID)
	}
	client.peerID = peerID

	previous := h.peers[peerID]
	h.peers[peerID] = client
	if previous == client {
		return nil
	}
	return previous
}

// peer returns the live client registered as peerID
func (h *Hub) peer(peerID string) *Client {
	h.mu.RLock()
	client := h.peers[peerID]
	h.mu.RUnlock()

	if client == nil || client.ctx.Err() != nil {
		return nil
	}
	return client
}

func (h *Hub) peerIDOf(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.peerID
}

// HandleWebSocket upgrades the request and serves it for deviceID
func (h *Hub) HandleWebSocket(c echo.Context, deviceID string) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	if deviceID == "" {
		deviceID = entities.AnonymousDevice
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:       uuid.NewString(),
		deviceID: deviceID,
		hub:      h,
		conn:     conn,
		send:     make(chan WriteData, 16),
		inbound:  make(chan WriteData, inboundQueue),
		ctx:      ctx,
		cancel:   cancel,
		logger:   h.logger.With(zap.String("deviceID", deviceID)),
	}

	select {
	case h.register <- client:
	case <-h.stopped:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.processPump()
	go client.readPump()

	return nil
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id       string
	deviceID string

	// Relay id chosen by the peer. Guarded by hub.mu.
	peerID string

	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Frames read from the peer, processed in arrival order.
	inbound chan WriteData

	// Cancelled when the client is closed.
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

func (c *Client) close() {
	c.cancel()
}

// readPump pumps messages from the websocket connection to processPump.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.close()
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
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}

		select {
		case c.inbound <- WriteData{Type: messageType, Payload: message}:
		case <-c.ctx.Done():
			return
		default:
			var messageID string
			if messageType == websocket.TextMessage {
				messageID = PeekMessageID(message)
			}
			c.logger.Warn("Inbound queue full, dropping frame", zap.String("messageID", messageID))
			c.reply(CreateErrorMessage(messageID, CodeBusy, "Too many pending messages"))
		}
	}
}

// writePump pumps messages from the send channel to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		}
	}
}

// processPump runs queued frames through the audio service one at a time
func (c *Client) processPump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.inbound:
			if msg := c.process(frame); msg != nil {
				c.reply(msg)
			}
		}
	}
}

func (c *Client) process(frame WriteData) interface{} {
	started := time.Now()
	req := usecase.Request{
		DeviceID:  c.deviceID,
		Transport: entities.TransportWebSocket,
	}

	var (
		messageID string
		result    usecase.Result
	)
	switch frame.Type {
	case websocket.BinaryMessage:
		c.logger.Debug("Received binary audio frame", zap.Int("size", len(frame.Payload)))
		result = c.hub.service.ProcessSignal(c.ctx, frame.Payload, req)
	default:
		env, err := ParseEnvelope(frame.Payload)
		if err != nil {
			return c.parseError("", err)
		}
		switch {
		case env.Type == MessageTypeRegister:
			return c.registerPeer(env)
		case env.Target != "":
			return c.relay(env, frame.Payload)
		}

		msg, err := ParseAudioMessage(frame.Payload)
		if err != nil {
			return c.parseError(env.MessageID, err)
		}
		messageID = msg.MessageID
		req.AudioData = msg.AudioData
		result = c.hub.service.Process(c.ctx, req)
	}

	if !result.OK() {
		return CreateErrorMessage(messageID, result.Outcome.ErrorCode(), result.Detail())
	}
	return CreateAudioResponseMessage(messageID, result.AudioData, time.Since(started))
}

// parseError reports an undecodable frame the way HTTP reports an
// undecodable body, as an internal error.
func (c *Client) parseError(messageID string, err error) *ErrorMessage {
	c.logger.Warn("Failed to parse message", zap.Error(err))
	if errors.Is(err, ErrMalformedFrame) {
		return CreateErrorMessage(messageID, usecase.OutcomeUnexpected.ErrorCode(), usecase.DetailInternalPrefix+err.Error())
	}
	return CreateErrorMessage(messageID, usecase.OutcomeInvalidRequest.ErrorCode(), err.Error())
}

func (c *Client) registerPeer(env *Envelope) interface{} {
	var peerID string
	if err := json.Unmarshal(env.Data, &peerID); err != nil || peerID == "" {
		return CreateErrorMessage(env.MessageID, usecase.OutcomeInvalidRequest.ErrorCode(), "register needs a non-empty string in data")
	}

	if previous := c.hub.registerPeer(peerID, c); previous != nil {
		c.logger.Info("Closing older connection for peer", zap.String("peerID", peerID))
		c.hub.remove(previous)
	}
	c.logger.Info("Peer registered", zap.String("peerID", peerID))
	return CreateRegisteredMessage(peerID)
}

// relay forwards a frame to its target peer. Nothing is sent back to the
// sender on success.
func (c *Client) relay(env *Envelope, payload []byte) interface{} {
	source := c.hub.peerIDOf(c)
	if source == "" {
		return CreateErrorMessage(env.MessageID, usecase.OutcomeInvalidRequest.ErrorCode(), "register before sending to a target")
	}

	unavailable := CreateErrorMessage(env.MessageID, CodeTargetUnavailable,
		fmt.Sprintf("Target client %s is not available", env.Target))
	target := c.hub.peer(env.Target)
	if target == nil {
		return unavailable
	}

	forwarded, err := StampSource(payload, source)
	if err != nil {
		return CreateErrorMessage(env.MessageID, usecase.OutcomeUnexpected.ErrorCode(), usecase.DetailInternalPrefix+err.Error())
	}
	if !target.deliver(forwarded) {
		return unavailable
	}

	c.logger.Debug("Relayed frame",
		zap.String("type", string(env.Type)),
		zap.String("source", source),
		zap.String("target", env.Target))
	return nil
}

// deliver queues a raw text frame for the peer. It reports false once the
// peer is closed.
func (c *Client) deliver(payload []byte) bool {
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) reply(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	case <-c.ctx.Done():
	}
}
