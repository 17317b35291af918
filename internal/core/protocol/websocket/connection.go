package websocket

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
)

const (
	inboxSize  = 32
	closeGrace = time.Second
)

var _ protocol.Conn = (*Conn)(nil)

// Conn is one WebSocket message channel. Envelopes travel as text
// frames; a background read loop decodes them into an inbox drained
// by Receive.
type Conn struct {
	ws     *websocket.Conn
	cfg    protocol.Config
	logger log.Log

	inbox  chan *protocol.Message
	done   chan struct{}
	closed int32

	// writeMu serializes data frames. Control frames do not need it.
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn, cfg protocol.Config, logger log.Log) *Conn {
	c := &Conn{
		ws:     ws,
		cfg:    cfg,
		logger: logger,
		inbox:  make(chan *protocol.Message, inboxSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	if cfg.KeepAlive > 0 {
		go c.pingLoop()
	}
	return c
}

// Send encodes m and writes it as a single text frame.
func (c *Conn) Send(m *protocol.Message) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return protocol.ErrConnectionClosed
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if c.cfg.MaxMessageSize > 0 && int64(len(data)) > c.cfg.MaxMessageSize {
		return protocol.ErrMessageTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err = c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = c.Close()
		return errors.Wrap(protocol.ErrConnectionClosed, err.Error())
	}
	return nil
}

// Receive returns the next inbound envelope. Envelopes decoded before
// the connection went down are still delivered.
func (c *Conn) Receive(ctx context.Context) (*protocol.Message, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	default:
	}
	select {
	case m := <-c.inbox:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		select {
		case m := <-c.inbox:
			return m, nil
		default:
		}
		return nil, protocol.ErrConnectionClosed
	}
}

// Close tears the connection down. It is idempotent.
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)

	deadline := time.Now().Add(closeGrace)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

func (c *Conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Done is closed once the connection is unusable.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readLoop() {
	defer func() { _ = c.Close() }()

	if c.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.extendReadDeadline()

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping undecodable frame", log.Error(err))
			continue
		}
		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var deadline time.Time
			if c.cfg.WriteTimeout > 0 {
				deadline = time.Now().Add(c.cfg.WriteTimeout)
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) extendReadDeadline() {
	if c.cfg.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}
