package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/soundsight/internal/dispatch"
	"github.com/1ureka/soundsight/internal/util"
)

// Tuning constants.
const (
	sendBufferSize = 64 // per-client outgoing message channel capacity
	writeTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts every message to all connected WebSocket clients. It is a
// dispatch.Presenter and a link.Events, so it can sit behind both the
// dispatch loop and the device link.
type Hub struct {
	seq *SeqGen

	mu      sync.Mutex
	clients map[string]*client

	listener net.Listener
	srv      *http.Server
}

// client is one WebSocket connection with its own writer goroutine.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		seq:     NewSeqGen(),
		clients: make(map[string]*client),
	}
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Handler serves the WebSocket endpoint at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

// Start begins listening on addr (":0" picks a free port). Returns the bound
// address.
func (h *Hub) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay server: %w", err)
	}
	h.listener = listener
	h.srv = &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

// Close stops the listener and disconnects every client.
func (h *Hub) Close() error {
	var err error
	if h.srv != nil {
		err = h.srv.Close()
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
	return err
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	util.LogInfo("relay client %s connected from %s", c.id, r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards inbound messages; it exists to process control frames
// and notice when the client goes away.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer h.drop(c)
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				util.LogDebug("relay client %s write error: %v", c.id, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// drop removes a client exactly once, whichever pump notices first.
func (h *Hub) drop(c *client) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		util.LogInfo("relay client %s disconnected", c.id)
	})
}

// ---------------------------------------------------------------------------
// Broadcast
// ---------------------------------------------------------------------------

// Broadcast stamps msg with a sequence number and timestamp and queues it for
// every client. A client whose buffer is full misses the message.
func (h *Hub) Broadcast(msg Message) {
	msg.Seq = h.seq.Next()
	msg.Timestamp = time.Now().UnixMilli()

	data, err := json.Marshal(msg)
	if err != nil {
		util.LogError("relay marshal failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			util.LogWarning("relay client %s buffer full, dropping message %d", c.id, msg.Seq)
		}
	}
}

func (h *Hub) OnDirectionChanged(d dispatch.Direction) {
	h.Broadcast(Message{Type: MsgTypeDirection, Direction: d.String(), Code: int(d)})
}

func (h *Hub) OnCaption(text string) {
	h.Broadcast(Message{Type: MsgTypeCaption, Text: text})
}

func (h *Hub) OnConnected() {
	h.Broadcast(Message{Type: MsgTypeStatus, Status: StatusConnected})
}

func (h *Hub) OnError(reason string) {
	h.Broadcast(Message{Type: MsgTypeStatus, Status: StatusError, Reason: reason})
}

func (h *Hub) OnConnectionClosed() {
	h.Broadcast(Message{Type: MsgTypeStatus, Status: StatusClosed})
}
