package quic

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
)

const (
	inboxSize  = 32
	headerSize = 4
)

// Application error codes sent with CloseWithError.
const (
	codeNormalClosure quic.ApplicationErrorCode = 0
	codeProtocolError quic.ApplicationErrorCode = 1
)

var _ protocol.Conn = (*Conn)(nil)

// Conn carries envelopes over one bidirectional QUIC stream as
// length-prefixed frames. Liveness is handled by QUIC itself: the
// keepalive period and idle timeout map onto the transport config,
// so stream reads carry no deadline of their own.
type Conn struct {
	conn   *quic.Conn
	stream *quic.Stream
	cfg    protocol.Config
	logger log.Log

	inbox  chan *protocol.Message
	done   chan struct{}
	closed int32

	writeMu sync.Mutex
}

func newConn(conn *quic.Conn, stream *quic.Stream, cfg protocol.Config, logger log.Log) *Conn {
	c := &Conn{
		conn:   conn,
		stream: stream,
		cfg:    cfg,
		logger: logger,
		inbox:  make(chan *protocol.Message, inboxSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send encodes m and writes it as one length-prefixed frame.
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

	frame := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[headerSize:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.stream.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err = c.stream.Write(frame); err != nil {
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
	return c.abort(codeNormalClosure, "closed")
}

func (c *Conn) abort(code quic.ApplicationErrorCode, reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	return c.conn.CloseWithError(code, reason)
}

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Done is closed once the connection is unusable.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readLoop() {
	defer func() { _ = c.Close() }()

	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(c.stream, header); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header)
		if c.cfg.MaxMessageSize > 0 && int64(size) > c.cfg.MaxMessageSize {
			c.logger.Warn("Peer announced oversized frame", log.Uint32("size", size))
			_ = c.abort(codeProtocolError, "frame exceeds size limit")
			return
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(c.stream, data); err != nil {
			return
		}
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
