package livestats

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans Queue messages out to connected dashboard clients over
// websocket. Adapted directly from this module's existing streaming hub:
// the same register/unregister/broadcast channel shape and the same
// non-blocking per-client send (drop-and-disconnect on a full client
// buffer rather than block the broadcaster).
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs a hub. Call Run in its own goroutine, then feed it
// from a Queue's Messages() channel (or call Publish directly).
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 256),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.fanOut(msg)
		case <-stop:
			return
		}
	}
}

// Publish feeds one message into the broadcast loop, non-blocking: a full
// internal buffer drops the message and logs it, never blocking the
// caller (the scenario tick loop must never stall on telemetry, §5).
func (h *Hub) Publish(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("livestats hub: broadcast buffer full, dropping %s message for scenario %d", msg.Type, msg.ScenarioIndex)
	}
}

func (h *Hub) fanOut(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("livestats hub: marshal error: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket dashboard connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("livestats hub: upgrade error: %v", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
