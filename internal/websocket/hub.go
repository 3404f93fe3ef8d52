// Package websocket bridges a user's device to the server over a WebSocket. The device
// streams microphone frames and plays clips the server schedules; the server pushes
// conversation updates.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/internal/audio"
	"github.com/satriahrh/peacepal/server/internal/voice"
	"github.com/satriahrh/peacepal/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	// Outbound queue per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionProvider returns the single logical session of a user
type SessionProvider interface {
	Get(ctx context.Context, userID string) (*usecase.Session, error)
}

// Hub maintains the set of active clients, one per user
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessions  SessionProvider
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(sessions SessionProvider, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessions:   sessions,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop. A new connection for a user replaces the previous one.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			previous := h.clients[client.userID]
			h.clients[client.userID] = client
			h.mu.Unlock()
			if previous != nil {
				h.logger.Info("Replacing client", zap.String("userID", client.userID))
				previous.close()
			}
			h.logger.Info("Client registered", zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client.userID] == client {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("userID", client.userID))
		}
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the user's session. It is
// also the audio device of the user's voice sessions.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// done is closed when the connection goes away
	done      chan struct{}
	closeOnce sync.Once

	// ctx lives as long as the connection
	ctx    context.Context
	cancel context.CancelFunc

	userID  string
	session *usecase.Session
	logger  *zap.Logger

	mu      sync.Mutex
	capture *deviceCapture
	output  *deviceOutput
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated user ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	session, err := hub.sessions.Get(c.Request().Context(), userID)
	if err != nil {
		logger.Error("Failed to load session", zap.String("userID", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session unavailable")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, userID, session, logger)
	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	client.sendJSON(CreateStateMessage(string(session.Voice.State())))
	client.sendView()
	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, session *usecase.Session, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan WriteData, sendBufferSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		userID:  userID,
		session: session,
		logger:  logger.With(zap.String("userID", userID)),
	}
}

// close ends the connection. Safe to call from any goroutine, more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
		c.conn.Close()
	})
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	unsubscribe := c.session.Conversation.Subscribe(func([]entities.Message) {
		c.sendView()
	})

	defer func() {
		unsubscribe()
		c.close()
		c.session.Voice.StopDevice(c)
		c.hub.unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processMicrophoneFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
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

// processMessage processes control messages from the device
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", "Invalid message", err.Error()))
		return
	}

	switch msg.Type {
	case MessageTypeVoiceStart:
		// Start blocks until the device confirms capture, which arrives on this pump
		go c.startVoice()
	case MessageTypeVoiceStop:
		c.session.Voice.Stop()
	case MessageTypeCaptureReady:
		c.captureResult(nil)
	case MessageTypeCaptureDenied:
		c.captureResult(voice.ErrPermissionDenied)
	case MessageTypePlaybackEnded:
		c.playbackEnded(msg.ClipID)
	case MessageTypePing:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

func (c *Client) startVoice() {
	err := c.session.Voice.Start(c.ctx, c)
	if errors.Is(err, voice.ErrSessionClosed) {
		c.logger.Info("Voice session stopped before it became active")
		return
	}
	if err != nil {
		c.logger.Warn("Failed to start voice session", zap.Error(err))
		c.sendJSON(CreateErrorMessage("voice_start_failed", "Failed to start voice session", err.Error()))
	}
}

// processMicrophoneFrame forwards a float32 frame to the open capture
func (c *Client) processMicrophoneFrame(data []byte) {
	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()
	if capture == nil {
		c.logger.Debug("Dropping microphone frame without open capture")
		return
	}

	samples, err := audio.DecodeFloat32Frame(data)
	if err != nil {
		c.logger.Warn("Dropping malformed microphone frame", zap.Error(err))
		return
	}
	capture.deliver(samples)
}

func (c *Client) sendView() {
	view := c.session.Conversation.View()
	c.sendJSON(&MessagesMessage{
		BaseMessage:  base(MessageTypeMessages),
		Mode:         view.State.Mode,
		ThinkingMode: view.State.ThinkingMode,
		Prompt:       view.Prompt,
		Messages:     view.Messages,
	})
}

// sendJSON queues a text frame without blocking and reports whether it was queued. A
// saturated connection is closed and the disconnect path releases its voice session.
func (c *Client) sendJSON(v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("Send buffer full, closing connection")
		c.close()
		return false
	}
}
