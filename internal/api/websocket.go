package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/attendancekit/nfc-backend/internal/logging"
	"github.com/attendancekit/nfc-backend/internal/reader"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The agent binds to localhost; browser pages served by the agent
	// itself are the only expected origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is the request/response envelope on the websocket channel.
type WSMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// WSHub tracks connected websocket clients and fans out broadcasts.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
}

// NewWSHub creates a hub. Run must be started before clients connect.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run processes register/unregister/broadcast events. Call in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; drop the message rather than block
					// the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastStatus pushes a continuous-mode status change to all clients.
// Scan results themselves are never pushed; clients poll the drain
// operation.
func (h *WSHub) BroadcastStatus(status reader.Status) {
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	data, err := json.Marshal(WSMessage{Type: "status", Payload: payload})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// WSClient is one websocket connection.
type WSClient struct {
	hub    *WSHub
	server *Server
	conn   *websocket.Conn
	send   chan []byte
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(logging.CatWebSocket, "Upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	client := &WSClient{
		hub:    s.hub,
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug(logging.CatWebSocket, "Client disconnected", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", "invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

type wsReadPayload struct {
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// handleMessage dispatches one request. The vocabulary mirrors the HTTP
// surface: every operation is request/response keyed by the message ID.
func (c *WSClient) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "health":
		c.sendResponse(msg.ID, "health", healthResponse{
			Status:  "ok",
			Message: "NFC backend is running",
			Version: Version,
			Scan:    c.server.ctrl.Status(),
		})

	case "status":
		c.sendResponse(msg.ID, "status", c.server.ctrl.Status())

	case "read_card":
		timeout := reader.DefaultReadTimeout
		if len(msg.Payload) > 0 {
			var p wsReadPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				c.sendError(msg.ID, "invalid read_card payload")
				return
			}
			if p.TimeoutSeconds > 0 {
				timeout = time.Duration(p.TimeoutSeconds * float64(time.Second))
			}
		}

		res := c.server.ctrl.ReadOnce(timeout)
		if res.Err != nil {
			c.sendError(msg.ID, res.Err.Error())
			return
		}
		if res.Present() {
			hex := res.UID.Hex()
			c.sendResponse(msg.ID, "read_card", scanResponse{
				UIDHex: &hex, Success: true, Message: "Card read successfully",
			})
		} else {
			c.sendResponse(msg.ID, "read_card", scanResponse{
				Success: false, Message: "No card detected (timeout)",
			})
		}

	case "continuous_start":
		if err := c.server.ctrl.Start(); err != nil {
			c.sendError(msg.ID, err.Error())
			return
		}
		c.hub.BroadcastStatus(c.server.ctrl.Status())
		c.sendResponse(msg.ID, "continuous_start", continuousResponse{
			Success: true, Message: "Continuous mode started", IsRunning: true,
		})

	case "continuous_stop":
		c.server.ctrl.Stop()
		c.hub.BroadcastStatus(c.server.ctrl.Status())
		c.sendResponse(msg.ID, "continuous_stop", continuousResponse{
			Success: true, Message: "Continuous mode stopped", IsRunning: false,
		})

	case "continuous_results":
		uids := c.server.ctrl.Drain()
		list := make([]string, len(uids))
		for i, uid := range uids {
			list[i] = uid.Hex()
		}
		c.sendResponse(msg.ID, "continuous_results", drainResponse{
			UIDHexList: list, Count: len(list),
		})

	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.sendError(id, "failed to encode response")
		return
	}
	out, err := json.Marshal(WSMessage{Type: msgType, ID: id, Payload: data})
	if err != nil {
		return
	}
	select {
	case c.send <- out:
	default:
	}
}

func (c *WSClient) sendError(id, message string) {
	out, err := json.Marshal(WSMessage{Type: "error", ID: id, Error: message})
	if err != nil {
		return
	}
	select {
	case c.send <- out:
	default:
	}
}
