// Package feed streams state changes to websocket clients while an analysis
// pass runs.
package feed

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lttng_iostate/internal/logger"
	"lttng_iostate/internal/statesystem"
)

const writeWait = 10 * time.Second

// Message types sent to clients.
const (
	TypeState  = "state"
	TypeStatus = "status"
)

// Message is one JSON frame of the feed.
type Message struct {
	Type   string `json:"type"`
	Ts     int64  `json:"ts,omitempty"`
	Path   string `json:"path,omitempty"`
	Value  any    `json:"value"`
	Status string `json:"status,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	prefix string
	send   chan Message
	once   sync.Once
	done   chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans state modifications out to connected clients. Delivery never
// blocks the publisher: a client whose buffer is full misses the message.
type Hub struct {
	upgrader websocket.Upgrader
	buffer   int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	published atomic.Uint64
	dropped   atomic.Uint64

	log *logger.SampledLogger
}

var _ statesystem.Listener = (*Hub)(nil)

// NewHub creates a hub giving each client a buffer of the given size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:  buffer,
		clients: make(map[*client]struct{}),
		log:     logger.NewSampledLoggerCtx("feed"),
	}
}

// AttributeModified implements statesystem.Listener.
func (h *Hub) AttributeModified(ts int64, path string, v statesystem.Value) {
	h.publish(Message{Type: TypeState, Ts: ts, Path: path, Value: v.Interface()})
}

// PublishStatus sends a status line, such as the end of a pass, to every
// client.
func (h *Hub) PublishStatus(status string) {
	h.publish(Message{Type: TypeStatus, Status: status})
}

func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if msg.Path != "" && !strings.HasPrefix(msg.Path, c.prefix) {
			continue
		}
		select {
		case c.send <- msg:
			h.published.Add(1)
		default:
			h.dropped.Add(1)
			if e := h.log.SampledWarn("feed_client_slow"); e != nil {
				e.Str("remote", c.conn.RemoteAddr().String()).Msg("Feed client too slow, dropping messages")
			}
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams messages until
// the client leaves. The optional "prefix" query parameter restricts state
// messages to attribute paths starting with it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Error upgrading feed connection")
		return
	}
	defer conn.Close()

	c := &client{
		conn:   conn,
		prefix: r.URL.Query().Get("prefix"),
		send:   make(chan Message, h.buffer),
		done:   make(chan struct{}),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Type: TypeStatus, Status: "connected"}); err != nil {
		h.log.Debug().Err(err).Msg("Error sending feed greeting")
		return
	}
	if !h.register(c) {
		return
	}
	defer h.unregister(c)
	h.log.Debug().Str("remote", conn.RemoteAddr().String()).Str("prefix", c.prefix).Msg("Feed client connected")

	go h.writeLoop(c)

	// Reads only detect the close; clients send nothing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("Feed client read error")
			}
			c.close()
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("Error sending feed message")
				c.close()
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Published and Dropped count messages queued to and dropped for clients.
func (h *Hub) Published() uint64 { return h.published.Load() }
func (h *Hub) Dropped() uint64   { return h.dropped.Load() }
