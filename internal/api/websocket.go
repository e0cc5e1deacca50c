// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The projection client is served from arbitrary local origins
		// (file://, LAN addresses) in classrooms.
		return true
	},
}

// StageClient is one projection-screen connection.
type StageClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed int32

	// lastPing is unix nanos, accessed atomically: the read pump writes it
	// on every pong while the hub loop checks for expiry.
	lastPing int64
}

// touch records liveness.
func (client *StageClient) touch() {
	atomic.StoreInt64(&client.lastPing, time.Now().UnixNano())
}

// expired reports whether the client has been silent longer than timeout.
func (client *StageClient) expired(timeout time.Duration) bool {
	last := time.Unix(0, atomic.LoadInt64(&client.lastPing))
	return time.Since(last) > timeout
}

// Close marks the client closed and closes the socket.
func (client *StageClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed reports whether the client is closed.
func (client *StageClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// StageEvent is the wire format pushed to projection clients.
type StageEvent struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StageHub fans engine events out to every connected projection client. It
// implements engine.Notifier, which keeps the engine transport-agnostic.
type StageHub struct {
	clients     map[*StageClient]bool
	broadcast   chan []byte
	register    chan *StageClient
	unregister  chan *StageClient
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger
}

// NewStageHub creates the hub and starts its event loop.
func NewStageHub() *StageHub {
	hub := &StageHub{
		clients:     make(map[*StageClient]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *StageClient, 16),
		unregister:  make(chan *StageClient, 16),
		pingTimeout: 60 * time.Second,
		logger:      utils.GetLogger(),
	}

	go hub.run()

	return hub
}

// run is the hub's main loop.
func (hub *StageHub) run() {
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-hub.register:
			hub.mutex.Lock()
			hub.clients[client] = true
			hub.mutex.Unlock()

		case client := <-hub.unregister:
			hub.removeClient(client)

		case message := <-hub.broadcast:
			hub.mutex.RLock()
			for client := range hub.clients {
				if client.IsClosed() {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Queue full: a stalled projector drops frames
					// rather than blocking the hub.
					hub.logger.Warnf("stage client queue full, dropping event")
				}
			}
			hub.mutex.RUnlock()

		case <-cleanupTicker.C:
			hub.cleanupExpired()
		}
	}
}

func (hub *StageHub) removeClient(client *StageClient) {
	hub.mutex.Lock()
	if _, ok := hub.clients[client]; ok {
		delete(hub.clients, client)
		close(client.send)
	}
	hub.mutex.Unlock()
	client.Close()
}

func (hub *StageHub) cleanupExpired() {
	hub.mutex.RLock()
	var expired []*StageClient
	for client := range hub.clients {
		if client.expired(hub.pingTimeout) {
			expired = append(expired, client)
		}
	}
	hub.mutex.RUnlock()

	for _, client := range expired {
		hub.removeClient(client)
	}
}

// Emit broadcasts one typed event to every projection client.
func (hub *StageHub) Emit(eventType string, payload interface{}) {
	event := StageEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		hub.logger.Errorf("failed to encode stage event: %v", err)
		return
	}

	select {
	case hub.broadcast <- data:
	default:
		hub.logger.Warnf("stage broadcast queue full, dropping %s", eventType)
	}
}

// engine.Notifier implementation.

func (hub *StageHub) SceneChanged(view *models.SceneView) {
	hub.Emit("scene_changed", view)
}

func (hub *StageHub) ChatMessage(personaID string, msg models.ChatMessage) {
	hub.Emit("chat_message", gin.H{"persona_id": personaID, "message": msg})
}

func (hub *StageHub) ChatPending(personaID string) {
	hub.Emit("chat_pending", gin.H{"persona_id": personaID})
}

func (hub *StageHub) ChatFailed(personaID string, message string) {
	hub.Emit("chat_failed", gin.H{"persona_id": personaID, "error": message})
}

func (hub *StageHub) StateChanged(stats map[string]float64) {
	hub.Emit("state_changed", gin.H{"stats": stats})
}

// HandleConnection upgrades an HTTP request into a projection connection.
func (hub *StageHub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := &StageClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	client.touch()

	hub.register <- client

	go hub.writePump(client)
	go hub.readPump(client)
}

// writePump flushes queued events and keeps the connection pinged.
func (hub *StageHub) writePump(client *StageClient) {
	pingTicker := time.NewTicker(hub.pingTimeout / 2)
	defer func() {
		pingTicker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames; projection clients only send pongs.
func (hub *StageHub) readPump(client *StageClient) {
	defer func() {
		hub.unregister <- client
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(hub.pingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.touch()
		client.conn.SetReadDeadline(time.Now().Add(hub.pingTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Status reports connection counts for the debug endpoint.
func (hub *StageHub) Status() map[string]interface{} {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	return map[string]interface{}{
		"connected_clients":    len(hub.clients),
		"ping_timeout_seconds": int(hub.pingTimeout.Seconds()),
	}
}
