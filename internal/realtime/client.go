package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/observability"
)

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectInterval = 3 * time.Second
)

// ErrNotConnected is returned by Send while no connection is open.
var ErrNotConnected = errors.New("realtime: not connected")

// ClientOptions configures a Client. Zero values take the defaults.
type ClientOptions struct {
	// ReconnectAttempts < 0 disables reconnecting.
	ReconnectAttempts int
	ReconnectInterval time.Duration
	Header            http.Header
	Dialer            *websocket.Dialer
	Logger            *slog.Logger

	OnConnect    func()
	OnDisconnect func()
	// OnMessage receives every frame; messageType is websocket.TextMessage or BinaryMessage.
	OnMessage func(messageType int, data []byte)
	OnError   func(err error)
}

// Client is a duplex connection to one URL that reconnects after unexpected
// closes, up to ReconnectAttempts times at a fixed interval. A successful
// connect resets the attempt count.
type Client struct {
	url  string
	opts ClientOptions
	log  *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	gen      uint64
	attempts int

	writeMu sync.Mutex
}

func NewClient(url string, opts ClientOptions) *Client {
	if opts.ReconnectAttempts == 0 {
		opts.ReconnectAttempts = DefaultReconnectAttempts
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = observability.Logger()
	}
	return &Client{url: url, opts: opts, log: opts.Logger.With("url", url)}
}

// Connect dials the server. ctx bounds the whole client lifetime, including
// later reconnects.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.attempts = 0
	c.mu.Unlock()
	return c.dial(ctx, gen)
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes v: strings as text frames, byte slices as binary frames and
// anything else as JSON text.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	var err error
	switch p := v.(type) {
	case string:
		err = conn.WriteMessage(websocket.TextMessage, []byte(p))
	case []byte:
		err = conn.WriteMessage(websocket.BinaryMessage, p)
	default:
		var b []byte
		if b, err = json.Marshal(v); err == nil {
			err = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
	return errors.Wrap(err, "realtime: send")
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

// Reconnect drops the current connection and dials again with a fresh attempt budget.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

func (c *Client) dial(ctx context.Context, gen uint64) error {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.emitError(err)
		return errors.Wrap(err, "realtime: dial")
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.log.Info("realtime connected")
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}
	go c.readLoop(ctx, gen, conn)
	return nil
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("realtime read ended", "error", err)
			}
			break
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(mt, data)
		}
	}
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	current := gen == c.gen
	c.mu.Unlock()

	c.log.Info("realtime disconnected")
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect()
	}
	if current {
		c.reconnect(ctx, gen)
	}
}

func (c *Client) reconnect(ctx context.Context, gen uint64) {
	for {
		c.mu.Lock()
		if gen != c.gen || c.opts.ReconnectAttempts < 0 || c.attempts >= c.opts.ReconnectAttempts {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		c.log.Info("realtime reconnecting", "attempt", attempt)
		t := time.NewTimer(c.opts.ReconnectInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := c.dial(ctx, gen); err == nil || errors.Is(err, ErrNotConnected) {
			return
		}
	}
}

func (c *Client) emitError(err error) {
	c.log.Warn("realtime error", "error", err)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}
