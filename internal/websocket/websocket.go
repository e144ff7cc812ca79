// Package websocket provides the WebSocket workload for vuload. Every
// virtual user owns one connection, dialed when the user starts and redialed
// on the next iteration after a transport error.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Message represents a WebSocket message to send or receive.
type Message struct {
	Type int // websocket.TextMessage or websocket.BinaryMessage
	Data []byte
}

// Metrics is a snapshot of connection counters.
type Metrics struct {
	ConnectionDuration time.Duration
	Connects           int64
	MessagesSent       int64
	MessagesReceived   int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

// Counters flattens the snapshot for reports and exporters.
func (m Metrics) Counters() map[string]int64 {
	return map[string]int64{
		"connects":          m.Connects,
		"messages_sent":     m.MessagesSent,
		"messages_received": m.MessagesReceived,
		"bytes_sent":        m.BytesSent,
		"bytes_received":    m.BytesReceived,
		"errors":            m.Errors,
	}
}

// Stats accumulates counters across every connection of a run. It is safe
// for concurrent use; the zero value is ready.
type Stats struct {
	connects     atomic.Int64
	messagesSent atomic.Int64
	messagesRecv atomic.Int64
	bytesSent    atomic.Int64
	bytesRecv    atomic.Int64
	errors       atomic.Int64
}

func (s *Stats) connected() { s.connects.Add(1) }
func (s *Stats) failed()    { s.errors.Add(1) }

func (s *Stats) sent(n int) {
	s.messagesSent.Add(1)
	s.bytesSent.Add(int64(n))
}

func (s *Stats) received(n int) {
	s.messagesRecv.Add(1)
	s.bytesRecv.Add(int64(n))
}

// Snapshot returns the counters so far.
func (s *Stats) Snapshot() Metrics {
	return Metrics{
		Connects:         s.connects.Load(),
		MessagesSent:     s.messagesSent.Load(),
		MessagesReceived: s.messagesRecv.Load(),
		BytesSent:        s.bytesSent.Load(),
		BytesReceived:    s.bytesRecv.Load(),
		Errors:           s.errors.Load(),
	}
}

// Client represents a WebSocket client connection.
type Client struct {
	url          string
	headers      http.Header
	dialer       *websocket.Dialer
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxMessage   int64

	// own counts this client alone; shared, when set, the whole run
	own    Stats
	shared *Stats

	mu          sync.Mutex
	conn        *websocket.Conn
	connectTime time.Time
}

// Config configures the WebSocket client behavior.
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	Stats            *Stats // optional run-wide counters
}

// NewClient creates a new WebSocket client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}

	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 1024 * 1024 // 1MB default
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	return &Client{
		url:          cfg.URL,
		headers:      cfg.Headers,
		dialer:       dialer,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		maxMessage:   cfg.MaxMessageSize,
		shared:       cfg.Stats,
	}
}

// record applies fn to the client's own counters and the run-wide ones.
func (c *Client) record(fn func(*Stats)) {
	fn(&c.own)
	if c.shared != nil {
		fn(c.shared)
	}
}

// Connect establishes a WebSocket connection. extra headers are sent with
// the handshake in addition to the configured ones.
func (c *Client) Connect(ctx context.Context, extra http.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	headers := c.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	for k, v := range extra {
		headers[k] = v
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		c.record((*Stats).failed)
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(c.maxMessage)

	c.conn = conn
	c.connectTime = time.Now()
	c.record((*Stats).connected)

	return nil
}

// Connected reports whether the client holds an open connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SendMessage sends a message over the WebSocket connection.
func (c *Client) SendMessage(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	_ = c.conn.SetWriteDeadline(deadline(ctx, c.writeTimeout))
	if err := c.conn.WriteMessage(msg.Type, msg.Data); err != nil {
		c.record((*Stats).failed)
		return fmt.Errorf("write message: %w", err)
	}

	c.record(func(s *Stats) { s.sent(len(msg.Data)) })

	return nil
}

// Ping sends a ping control frame.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	wait := deadline(ctx, c.writeTimeout)
	if wait.IsZero() {
		wait = time.Now().Add(5 * time.Second)
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, wait); err != nil {
		c.record((*Stats).failed)
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ReceiveMessage reads a message from the WebSocket connection.
// Returns an error if the connection is closed or times out.
func (c *Client) ReceiveMessage(ctx context.Context) (Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return Message{}, fmt.Errorf("not connected")
	}

	_ = conn.SetReadDeadline(deadline(ctx, c.readTimeout))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		c.record((*Stats).failed)
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	c.record(func(s *Stats) { s.received(len(data)) })

	return Message{Type: msgType, Data: data}, nil
}

// Close closes the WebSocket connection gracefully.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	// Send close frame
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)

	closeErr := c.conn.Close()
	c.conn = nil

	if err != nil {
		return err
	}

	return closeErr
}

// drop discards a broken connection without a close handshake.
func (c *Client) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Metrics returns the counters of this client alone.
func (c *Client) Metrics() Metrics {
	m := c.own.Snapshot()
	c.mu.Lock()
	if !c.connectTime.IsZero() {
		m.ConnectionDuration = time.Since(c.connectTime)
	}
	c.mu.Unlock()
	return m
}

// deadline picks the earlier of the context deadline and now+timeout. A zero
// result means no deadline.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}
