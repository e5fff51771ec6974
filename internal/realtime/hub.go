// Package realtime relays change feed events to browser clients over
// websockets.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"absensi-backend/internal/changefeed"
)

const (
	TypeChange       = "db:change"
	TypeSnapshotInit = "snapshot:init"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Message is the envelope of everything sent to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SnapshotFunc supplies the payload of the snapshot:init message.
type SnapshotFunc func() any

type Hub struct {
	snapshot   SnapshotFunc
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int64
}

type Client struct {
	ID   string
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

// NewHub: snapshot は接続直後と取りこぼし時に送る。nil なら送らない。
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot:   snapshot,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			// 登録と同じループで取るので、これ以降の broadcast は必ず届く
			if h.snapshot != nil {
				client.Send(Message{Type: TypeSnapshotInit, Payload: h.snapshot()})
			}
			h.clients[client] = true
			h.count.Add(1)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					log.Printf("[WARN] realtime: client %s too slow, disconnecting", client.ID)
					h.drop(client)
				}
			}
		}
	}
}

// Register returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// Clients is the number of registered clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Relay broadcasts every event of sub until it is closed or ctx ends. When
// the subscription has dropped events, clients get a fresh snapshot:init
// instead.
func (h *Hub) Relay(ctx context.Context, sub *changefeed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if n := sub.TakeDropped(); n > 0 {
				log.Printf("[WARN] realtime: relay dropped %d events, resending snapshot", n)
				if h.snapshot != nil {
					h.Broadcast(Message{Type: TypeSnapshotInit, Payload: h.snapshot()})
					continue
				}
			}
			h.Broadcast(Message{Type: TypeChange, Payload: ev})
		}
	}
}

func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] realtime: marshal %s: %v", msg.Type, err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// ReadPump only services pongs and close frames; clients never send data.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure) {
				log.Printf("[WARN] realtime: client %s read: %v", c.ID, err)
			}
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(ws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues msg for this client only. Only the hub loop calls it, so the
// channel is never closed underneath it.
func (c *Client) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] realtime: marshal %s: %v", msg.Type, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WARN] realtime: dropping %s for slow client %s", msg.Type, c.ID)
	}
}
