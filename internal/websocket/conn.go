package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/internal/metrics"
	"github.com/satriahrh/sandiwara/internal/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the opening handshake.
	handshakeTimeout = 10 * time.Second

	// Maximum frame size accepted from the peer.
	maxMessageSize = 32 << 20

	// LogIDHeader carries the server-side trace id of a connection.
	LogIDHeader = "X-Tt-Logid"
)

var (
	// ErrTransport wraps failures of the underlying byte stream.
	ErrTransport = errors.New("websocket: transport error")

	// ErrConnectionClosed is returned to receivers once Close has been called.
	ErrConnectionClosed = errors.New("websocket: connection closed")
)

// Option configures a Conn.
type Option func(*Conn)

// WithMetrics records frame traffic on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Conn) {
		c.metrics = m
	}
}

// WithReadLimit overrides the maximum accepted frame size.
func WithReadLimit(limit int64) Option {
	return func(c *Conn) {
		c.readLimit = limit
	}
}

type delivery struct {
	msg *protocol.Message
	err error
}

type waiter struct {
	ch chan delivery
}

// Conn demultiplexes one websocket into an ordered stream of decoded messages.
//
// Decoded messages that nobody is waiting for are queued; receivers that find the queue
// empty wait in arrival order. At most one of the two lists is non-empty at any time.
type Conn struct {
	ws      *websocket.Conn
	logger  *zap.Logger
	metrics *metrics.Metrics

	readLimit int64

	// Serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu      sync.Mutex
	queue   []*protocol.Message
	waiters []*waiter
	err     error
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a websocket to url and starts demultiplexing it. The handshake response is
// returned so that callers can read server headers such as LogIDHeader.
func Dial(ctx context.Context, url string, header http.Header, logger *zap.Logger, opts ...Option) (*Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, resp, fmt.Errorf("%w: dial %s: status %d: %w", ErrTransport, url, resp.StatusCode, err)
		}
		return nil, nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, url, err)
	}

	logger.Info("Connected to speech service",
		zap.String("url", url),
		zap.String("logID", resp.Header.Get(LogIDHeader)))

	return NewConn(ws, logger, opts...), resp, nil
}

// NewConn takes ownership of ws and starts reading from it.
func NewConn(ws *websocket.Conn, logger *zap.Logger, opts ...Option) *Conn {
	c := newConn(ws, logger, opts...)
	c.ws.SetReadLimit(c.readLimit)
	c.metrics.ConnectionOpened()
	go c.readPump()
	return c
}

func newConn(ws *websocket.Conn, logger *zap.Logger, opts ...Option) *Conn {
	c := &Conn{
		ws:        ws,
		logger:    logger,
		readLimit: maxMessageSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// readPump feeds every inbound frame to handleFrame until the socket fails.
func (c *Conn) readPump() {
	defer close(c.done)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("Speech service connection error", zap.Error(err))
			}
			c.fail(fmt.Errorf("%w: read: %w", ErrTransport, err))
			return
		}

		if messageType == websocket.TextMessage {
			c.logger.Warn("Received text frame, decoding as binary", zap.Int("size", len(data)))
		}

		if err := c.handleFrame(data); err != nil {
			return
		}
	}
}

// handleFrame decodes one frame and hands it to the oldest waiter, or queues it.
// A frame that fails to decode is fatal to the connection.
func (c *Conn) handleFrame(data []byte) error {
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Error("Failed to decode frame", zap.Int("size", len(data)), zap.Error(err))
		err = fmt.Errorf("decode frame: %w", err)
		c.fail(err)
		c.closeSocket()
		return err
	}

	c.metrics.FrameReceived(msg.Type.String(), msg.Event.String())
	switch msg.Type {
	case protocol.MsgTypeAudioOnlyServer:
		c.metrics.AudioReceived(len(msg.Payload))
	case protocol.MsgTypeError:
		c.metrics.ServerError()
	}
	c.logger.Debug("Received frame", zap.Stringer("message", msg))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters[0] = nil
		c.waiters = c.waiters[1:]
		c.mu.Unlock()
		w.ch <- delivery{msg: msg}
		return nil
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	return nil
}

// fail records the first terminal error and rejects every pending receiver with it.
// Messages already queued stay deliverable.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	waiters := c.waiters
	c.waiters = nil
	err = c.err
	c.mu.Unlock()

	for _, w := range waiters {
		w.ch <- delivery{err: err}
	}
}

// ReceiveMessage returns the oldest undelivered message, waiting for one to arrive if
// necessary. Cancelling ctx abandons the wait without losing a message.
func (c *Conn) ReceiveMessage(ctx context.Context) (*protocol.Message, error) {
	c.mu.Lock()
	if len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()
		return msg, nil
	}
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	w := &waiter{ch: make(chan delivery, 1)}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case d := <-w.ch:
		return d.msg, d.err
	case <-ctx.Done():
		c.mu.Lock()
		removed := c.removeWaiter(w)
		c.mu.Unlock()
		if removed {
			return nil, ctx.Err()
		}
		// Already handed a message or an error; take it rather than drop it.
		d := <-w.ch
		return d.msg, d.err
	}
}

func (c *Conn) removeWaiter(w *waiter) bool {
	for i, pending := range c.waiters {
		if pending == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// WriteMessage encodes msg and writes it as one binary frame.
func (c *Conn) WriteMessage(msg *protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %w", ErrTransport, ErrConnectionClosed)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.logger.Error("Failed to write frame",
			zap.Stringer("type", msg.Type),
			zap.Stringer("event", msg.Event),
			zap.Error(err))
		return fmt.Errorf("%w: write %s: %w", ErrTransport, msg.Event, err)
	}

	c.metrics.FrameSent(msg.Type.String(), msg.Event.String())
	c.logger.Debug("Sent frame", zap.Stringer("message", msg))
	return nil
}

// Close closes the socket, discards undelivered messages and rejects pending receivers
// with ErrConnectionClosed. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		waiters := c.waiters
		c.waiters = nil
		if c.err == nil {
			c.err = ErrConnectionClosed
		}
		c.mu.Unlock()

		for _, w := range waiters {
			w.ch <- delivery{err: ErrConnectionClosed}
		}

		if c.ws != nil {
			c.writeMu.Lock()
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.writeMu.Unlock()
			err = c.ws.Close()
			c.metrics.ConnectionClosed()
		}
	})
	return err
}

// Done is closed once the read side of the connection has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) closeSocket() {
	if c.ws != nil {
		c.ws.Close()
	}
}
