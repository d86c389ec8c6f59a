package live

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	UserID uint
	Conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *Client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks connected subscribers and fans new signal events out to
// them. Connections are keyed by user id; a user may hold several.
type Hub struct {
	clients map[uint][]*Client
	mu      sync.RWMutex
	db      *gorm.DB
}

func NewHub(db *gorm.DB) *Hub {
	return &Hub{
		clients: make(map[uint][]*Client),
		db:      db,
	}
}

func (h *Hub) registerClient(userID uint, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := &Client{UserID: userID, Conn: conn}
	h.clients[userID] = append(h.clients[userID], client)
	return client
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[client.UserID]
	for i, c := range conns {
		if c == client {
			h.clients[client.UserID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
	}
}

// SignalEvent is the JSON frame pushed to connected clients.
type SignalEvent struct {
	Type   string         `json:"type"` // signal_created or signal_closed
	Signal *models.Signal `json:"signal"`
	SentAt time.Time      `json:"sent_at"`
}

// Broadcast sends the event to every connected client. Slow or dead
// connections are dropped rather than blocking the rest.
func (h *Hub) Broadcast(event SignalEvent) {
	event.SentAt = time.Now()
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling signal event: %v", err)
		return
	}

	h.mu.RLock()
	var all []*Client
	for _, conns := range h.clients {
		all = append(all, conns...)
	}
	h.mu.RUnlock()

	for _, client := range all {
		if err := client.send(payload); err != nil {
			log.Printf("Dropping websocket client for user %d: %v", client.UserID, err)
			client.Conn.Close()
			h.unregisterClient(client)
		}
	}
}

type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/signals", utils.AuthMiddleware(h.HandleWebSocket))
}

// HandleWebSocket upgrades the connection for users whose subscription
// or trial is still running.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.hub.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if user.SubscriptionStatus != models.SubscriptionActive && user.SubscriptionStatus != models.SubscriptionTrial {
		http.Error(w, "Active subscription required", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := h.hub.registerClient(userID, conn)
	go h.readLoop(client)
}

// readLoop drains inbound frames so pings are answered; the feed is
// one-way, anything the client sends is discarded.
func (h *WebSocketHandler) readLoop(client *Client) {
	defer func() {
		h.hub.unregisterClient(client)
		client.Conn.Close()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}
