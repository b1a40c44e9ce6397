package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // single-user dev tool, cross-origin is fine
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub broadcasts fill confirmations to connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     *logrus.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{clients: make(map[*wsClient]bool), log: log}
}

// fillEvent is the settlement confirmation pushed to clients.
type fillEvent struct {
	Type   string  `json:"type"`
	UserID string  `json:"userId"`
	Pair   string  `json:"pair"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// BroadcastFill pushes a fill confirmation to every connected client.
// Signature matches session.Manager's fill notifier.
func (h *Hub) BroadcastFill(userID string, trade models.Trade) {
	data, err := json.Marshal(fillEvent{
		Type:   "fill",
		UserID: userID,
		Pair:   trade.Pair,
		Side:   trade.Side,
		Price:  trade.Price,
		Amount: trade.Amount,
	})
	if err != nil {
		h.log.WithError(err).Error("failed to marshal fill event")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(data); err != nil {
			h.log.WithError(err).Debug("dropping websocket client")
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}

// ServeWS upgrades the connection and keeps it registered until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}
