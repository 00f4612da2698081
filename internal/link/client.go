// Package link owns the TCP connection to the sensor device: connect, the
// read loop that feeds the frame decoder, outbound sends and disconnect.
// At most one connection attempt is active per Client.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/1ureka/soundsight/internal/metrics"
	"github.com/1ureka/soundsight/internal/protocol"
	"github.com/1ureka/soundsight/internal/util"
)

var (
	ErrAlreadyActive = errors.New("link: connection already active")
	ErrNotConnected  = errors.New("link: not connected")
)

// Tuning constants.
const (
	readBufferSize     = 1024 // bytes per socket read
	defaultDialTimeout = 5 * time.Second
)

// Config controls framing and dialing.
type Config struct {
	Variant     protocol.Variant
	MaxBuffer   int           // decoder cap for an unterminated frame
	DialTimeout time.Duration // 0 leaves the OS default
}

func DefaultConfig() Config {
	return Config{
		Variant:     protocol.VariantB,
		MaxBuffer:   protocol.DefaultMaxBuffer,
		DialTimeout: defaultDialTimeout,
	}
}

// attempt is one Connect call: a dial followed, on success, by a read loop.
// Fields other than ctx/cancel/done are guarded by Client.mu.
type attempt struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	conn      net.Conn
	id        uint32
	requested bool // Disconnect was called for this attempt
	connected bool
}

// Client is the device connection manager.
type Client struct {
	cfg    Config
	sink   Sink
	events Events

	mu    sync.Mutex
	state State
	cur   *attempt

	writeMu sync.Mutex // serializes socket writes

	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New creates a disconnected client. Decoded payloads go to sink; lifecycle
// signals go to events (may be nil).
func New(cfg Config, sink Sink, events Events) *Client {
	if events == nil {
		events = noopEvents{}
	}
	return &Client{
		cfg:    cfg,
		sink:   sink,
		events: events,
		state:  Disconnected,
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Connect starts an asynchronous connection to host:port and returns
// immediately. It is valid from Disconnected or Failed; otherwise it returns
// ErrAlreadyActive. The outcome is reported through Events.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	aCtx, cancel := context.WithCancel(ctx)
	a := &attempt{
		ctx:    aCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.cur = a
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	go c.run(a, addr)
	return nil
}

// Disconnect closes the socket, aborts a pending dial and moves to
// Disconnected. Safe to call from any state, repeatedly, and from inside an
// Events callback.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a := c.cur; a != nil && !a.requested {
		a.requested = true
		a.cancel()
		if a.conn != nil {
			// Unblocks the read loop.
			a.conn.Close()
		}
	}
	c.setStateLocked(Disconnected)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel that is closed when the most recent attempt's
// goroutine has exited. Before the first Connect it is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.cur.done
}

// RemoteAddr returns the peer address while connected, or "".
func (c *Client) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.conn == nil || c.state != Connected {
		return ""
	}
	return c.cur.conn.RemoteAddr().String()
}

// lastAttemptConnected reports whether the most recent attempt reached
// Connected.
func (c *Client) lastAttemptConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && c.cur.connected
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

// Send writes text followed by a newline. It is only valid while Connected.
// A write failure is reported through Events.OnError and returned.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	if c.state != Connected || c.cur == nil || c.cur.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn, id := c.cur.conn, c.cur.id
	c.mu.Unlock()

	data := protocol.EncodeLine(text)

	c.writeMu.Lock()
	_, err := conn.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		reason := fmt.Sprintf("send failed: %v", err)
		util.LogWarning("[%08x] %s", id, reason)
		c.events.OnError(reason)
		return fmt.Errorf("link: send: %w", err)
	}

	util.Stats.AddSent(len(data))
	return nil
}

// ---------------------------------------------------------------------------
// Connection goroutine
// ---------------------------------------------------------------------------

// run dials, then reads until the connection ends. It is the only goroutine
// that reads from the socket or touches the attempt's decoder.
func (c *Client) run(a *attempt, addr string) {
	defer close(a.done)
	defer a.cancel()

	conn, err := c.dial(a.ctx, addr)
	if err != nil {
		c.mu.Lock()
		live := c.cur == a && !a.requested
		if live {
			if a.ctx.Err() != nil {
				// Parent context cancelled while dialing.
				c.setStateLocked(Disconnected)
				live = false
			} else {
				c.setStateLocked(Failed)
			}
		}
		c.mu.Unlock()

		if live {
			metrics.RecordConnect(false)
			reason := fmt.Sprintf("connect to %s failed: %v", addr, err)
			util.LogError("%s", reason)
			c.events.OnError(reason)
		}
		return
	}

	c.mu.Lock()
	if c.cur != a || a.requested {
		c.mu.Unlock()
		conn.Close()
		return
	}
	a.conn = conn
	a.id = util.ConnID(conn)
	a.connected = true
	c.setStateLocked(Connected)
	c.mu.Unlock()

	// Parent cancellation closes the socket to unblock the read.
	go func() {
		<-a.ctx.Done()
		conn.Close()
	}()

	util.Stats.AddConn()
	metrics.RecordConnect(true)
	util.LogSuccess("[%08x] connected to %s", a.id, addr)
	c.events.OnConnected()

	readErr := c.readLoop(a, conn)
	conn.Close()

	c.mu.Lock()
	closedByUs := a.requested || a.ctx.Err() != nil
	if c.cur == a && !a.requested {
		if closedByUs {
			c.setStateLocked(Disconnected)
		} else {
			c.setStateLocked(Failed)
		}
	}
	c.mu.Unlock()

	util.Stats.RemoveConn()
	if closedByUs {
		util.Logf("[%08x] connection closed", a.id)
	} else {
		reason := readErr.Error()
		util.LogWarning("[%08x] connection lost: %s", a.id, reason)
		c.events.OnError(reason)
	}
	c.events.OnConnectionClosed()
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	timeout := c.cfg.DialTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if c.dialContext != nil {
		return c.dialContext(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// readLoop feeds every chunk to the decoder and pushes completed payloads in
// order. It returns the error that ended the connection.
func (c *Client) readLoop(a *attempt, conn net.Conn) error {
	dec := protocol.NewDecoder(c.cfg.Variant, c.cfg.MaxBuffer)
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)

		if n > 0 {
			util.Stats.AddRecv(n)
			payloads, derr := dec.Feed(buf[:n])
			if derr != nil {
				metrics.RecordOverflow()
				util.LogWarning("[%08x] %v", a.id, derr)
			}
			if len(payloads) > 0 {
				util.Stats.AddFrames(len(payloads))
				if c.sink != nil {
					c.sink.Push(payloads...)
				}
			}
			metrics.RecordRead(n, len(payloads))
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("connection closed by peer")
			}
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// setStateLocked must be called with c.mu held.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	util.LogDebug("link state %s -> %s", c.state, s)
	c.state = s
	metrics.SetLinkState(int(s))
	if obs, ok := c.events.(StateObserver); ok {
		obs.OnStateChange(s)
	}
}
