// Package device is the sensor side of the link: a TCP server that sends
// every published value, framed, to all connected clients.
package device

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/1ureka/soundsight/internal/protocol"
	"github.com/1ureka/soundsight/internal/util"
)

const writeTimeout = 2 * time.Second

// Broadcaster accepts any number of clients. A new client first receives the
// latest value (if any), then every value published after it joined. Clients
// whose write fails are dropped.
type Broadcaster struct {
	variant protocol.Variant

	mu      sync.Mutex
	clients map[net.Conn]uint32 // conn -> log id; ids may collide
	latest  string
	hasLast bool

	listener net.Listener
}

func NewBroadcaster(v protocol.Variant) *Broadcaster {
	return &Broadcaster{
		variant: v,
		clients: make(map[net.Conn]uint32),
	}
}

// Start listens on addr and accepts clients in the background until ctx is
// cancelled. Returns the bound address.
func (b *Broadcaster) Start(ctx context.Context, addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	b.listener = listener

	// Close the listener when context is done so Accept() returns an error.
	go func() {
		<-ctx.Done()
		listener.Close()
		b.closeAll()
	}()

	go b.acceptLoop(ctx)

	util.LogInfo("device broadcaster listening on %s", listener.Addr())
	return listener.Addr(), nil
}

func (b *Broadcaster) acceptLoop(ctx context.Context) {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				util.LogError("accept error: %v", err)
			}
			return
		}
		b.addClient(conn)
	}
}

// addClient registers conn, sends it the latest value and starts watching
// it for hangup.
func (b *Broadcaster) addClient(conn net.Conn) {
	id := util.ConnID(conn)
	util.Logf("[%08x] client connected from %s", id, conn.RemoteAddr())
	util.Stats.AddConn()

	b.mu.Lock()
	b.clients[conn] = id
	if b.hasLast {
		b.writeLocked(conn, id, protocol.EncodeFrame(b.variant, b.latest))
	}
	b.mu.Unlock()

	go b.watch(conn, id)
}

// watch reads until the client goes away; inbound bytes are logged and
// otherwise ignored.
func (b *Broadcaster) watch(conn net.Conn, id uint32) {
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			util.Logf("[%08x] client sent %q", id, buf[:n])
		}
		if err != nil {
			break
		}
	}
	b.mu.Lock()
	b.removeLocked(conn)
	b.mu.Unlock()
}

// Publish records value as the latest and sends it to every client.
func (b *Broadcaster) Publish(value string) {
	frame := protocol.EncodeFrame(b.variant, value)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = value
	b.hasLast = true
	for conn, id := range b.clients {
		b.writeLocked(conn, id, frame)
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) writeLocked(conn net.Conn, id uint32, frame []byte) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(frame); err != nil {
		util.LogWarning("[%08x] write failed, dropping client: %v", id, err)
		b.removeLocked(conn)
		return
	}
	util.Stats.AddSent(len(frame))
	util.Stats.AddFrames(1)
}

func (b *Broadcaster) removeLocked(conn net.Conn) {
	id, ok := b.clients[conn]
	if !ok {
		return
	}
	delete(b.clients, conn)
	conn.Close()
	util.Stats.RemoveConn()
	util.Logf("[%08x] client disconnected", id)
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		b.removeLocked(conn)
	}
}
