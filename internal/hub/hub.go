package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event names carried in the envelope.
const (
	EventProgress = "progressUpdate"
	EventMessage  = "message"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// Envelope is the JSON frame exchanged with subscribers.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Snapshotter exposes the current progress value.
type Snapshotter interface {
	Snapshot() int
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks live websocket subscribers and fans frames out to them.
type Hub struct {
	log      *zap.Logger
	progress Snapshotter
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	clients map[string]*client
}

// New creates a Hub. Browser origins not in allowedOrigins are rejected;
// an empty list allows any origin.
func New(log *zap.Logger, progress Snapshotter, allowedOrigins []string) *Hub {
	h := &Hub{
		log:        log,
		progress:   progress,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run owns the subscriber set until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub stopping", zap.Int("clients", h.Len()))
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			// The newcomer learns the current value before any broadcast.
			c.send <- h.progressFrame(h.progress.Snapshot())
			h.log.Info("client connected", zap.String("client_id", c.id), zap.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
				h.log.Info("client disconnected", zap.String("client_id", c.id), zap.Int("clients", len(h.clients)))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("client send buffer full, dropping frame", zap.String("client_id", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		h.mu.Unlock()
	})
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastProgress pushes the counter to every subscriber.
func (h *Hub) BroadcastProgress(value int) {
	h.publish(h.progressFrame(value))
}

func (h *Hub) publish(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

func (h *Hub) progressFrame(value int) []byte {
	data, _ := json.Marshal(value)
	frame, _ := json.Marshal(Envelope{Event: EventProgress, Data: data})
	return frame
}

// messageFrame wraps data in a "message" envelope without re-encoding it,
// so subscribers receive the sender's bytes as they were.
func messageFrame(data json.RawMessage) []byte {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	frame := make([]byte, 0, len(data)+32)
	frame = append(frame, `{"event":"`+EventMessage+`","data":`...)
	frame = append(frame, data...)
	return append(frame, '}')
}

// ServeHTTP upgrades the request and serves one subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump relays "message" frames from one subscriber to all of them.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event != EventMessage {
			h.log.Debug("ignoring frame", zap.String("client_id", c.id), zap.ByteString("frame", raw))
			continue
		}
		h.publish(messageFrame(env.Data))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
