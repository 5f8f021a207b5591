// Package ws implements the cloud transport over a WebSocket connection.
//
// Audio frames travel as binary messages. Link quality is probed with
// WebSocket pings on a fixed interval; each successful probe is published
// as a [transport.QualityReport] carrying the measured round-trip time.
// The radio's signal strength is not visible from this layer, so reports
// leave RSSI at zero and the consumer falls back to RTT classification.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// Config describes the endpoint and the link budgets.
type Config struct {
	// URL is the wss:// endpoint of the speech service.
	URL string

	// Token, when non-empty, is sent as a Bearer token on the dial
	// request.
	Token string

	// DialTimeout bounds Connect. Default 10s.
	DialTimeout time.Duration

	// WriteTimeout bounds a single Send or ping write. Default 5s.
	WriteTimeout time.Duration

	// PingInterval is the spacing of round-trip probes. Default 15s.
	PingInterval time.Duration

	// MaxFrameBytes caps a single inbound message. Default 1 MiB.
	MaxFrameBytes int64
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 1 << 20
	}
	return c
}

// Client is a [transport.Transport] over one WebSocket connection at a
// time. A dropped connection leaves the client in the not-ready state;
// the next Connect dials fresh while Frames and Quality stay valid.
type Client struct {
	cfg Config
	log *slog.Logger

	frames  chan []byte
	quality chan transport.QualityReport

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New returns an unconnected client for cfg.
func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "transport.ws"),
		frames:  make(chan []byte, 32),
		quality: make(chan transport.QualityReport, 4),
	}
}

// Connect dials the configured endpoint and starts the reader and the
// quality prober. A no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if c.cfg.Token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, opts)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	conn.SetReadLimit(c.cfg.MaxFrameBytes)

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = connCancel
	c.wg.Add(2)
	go c.readLoop(connCtx, conn)
	go c.pingLoop(connCtx, conn)

	c.log.Info("connected", "url", c.cfg.URL)
	return nil
}

// Send transmits one binary frame on the current connection. The
// connection pointer is snapshotted under the lock; the write itself
// happens without holding it.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if conn == nil {
		return transport.ErrNotReady
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageBinary, frame); err != nil {
		c.dropConn(conn, err)
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Frames returns the inbound frame channel. Closed by Close.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// Quality returns the round-trip probe channel. Closed by Close.
func (c *Client) Quality() <-chan transport.QualityReport {
	return c.quality
}

// Close tears down the connection and closes the Frames and Quality
// channels once the reader and prober have stopped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	// Close the connection before cancelling the loops: the blocked
	// reader consumes the peer's close response, letting the handshake
	// finish cleanly. Cancelling first would fail the connection out
	// from under Close.
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	close(c.frames)
	close(c.quality)
	return err
}

// dropConn detaches conn after a read or write failure so the next
// Connect dials fresh. Only the connection that failed is detached; a
// racing reconnect is left alone.
func (c *Client) dropConn(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}
	closed := c.closed
	c.mu.Unlock()

	if current {
		conn.Close(websocket.StatusAbnormalClosure, "link failure")
		if !closed {
			c.log.Warn("connection dropped", "error", cause)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.dropConn(conn, err)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		select {
		case c.frames <- data:
		default:
			// The playback side is not draining; real-time audio is
			// worthless late, so shed the frame here.
			c.log.Debug("inbound frame dropped, consumer lagging", "bytes", len(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Debug("ping failed", "error", err)
			}
			continue
		}

		select {
		case c.quality <- transport.QualityReport{RTT: time.Since(start)}:
		default:
		}
	}
}

var _ transport.Transport = (*Client)(nil)
