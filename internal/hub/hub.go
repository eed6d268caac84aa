package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// UpdateEvent is the event name viewers listen for
const UpdateEvent = "update_soc"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// Event is the envelope written to viewers
type Event struct {
	Event string          `json:"event"`
	Data  models.Readings `json:"data"`
}

// Snapshotter provides the readings a new viewer starts from
type Snapshotter interface {
	Snapshot() models.Readings
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans updates out to WebSocket viewers; only Run touches clients
type Hub struct {
	store      Snapshotter
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	clients    map[*client]bool
	count      atomic.Int64
}

// New creates a new hub
func New(store Snapshotter) *Hub {
	return &Hub{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

// Name implements services.Sink
func (h *Hub) Name() string {
	return "websocket"
}

// Clients returns the number of connected viewers
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Publish implements services.Sink
func (h *Hub) Publish(ctx context.Context, readings models.Readings) error {
	msg, err := encode(readings)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return fmt.Errorf("hub is stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves register, unregister and broadcast until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	log.Println("Hub: Starting...")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			log.Println("Hub: Shutting down...")
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			log.Printf("Hub: Viewer %s connected (%d total)", c.id, len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				h.remove(c)
				log.Printf("Hub: Viewer %s disconnected (%d total)", c.id, len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Printf("Hub: Viewer %s is too slow, dropping connection", c.id)
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// ServeWS upgrades the request and streams updates, starting with the current readings
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Hub: Upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	initial, err := encode(h.store.Snapshot())
	if err != nil {
		log.Printf("Hub: Error encoding initial snapshot: %v", err)
		conn.Close()
		return
	}
	c.send <- initial

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards viewer messages and detects closed connections
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Hub: Viewer %s read error: %v", c.id, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
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

func encode(readings models.Readings) ([]byte, error) {
	msg, err := json.Marshal(Event{Event: UpdateEvent, Data: readings})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", UpdateEvent, err)
	}
	return msg, nil
}
