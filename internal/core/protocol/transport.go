package protocol

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Config holds transport tuning shared by every implementation.
type Config struct {
	// MaxMessageSize bounds a single encoded envelope.
	MaxMessageSize int64

	// ReadTimeout bounds silence on the wire. Keepalive traffic
	// extends it, so an idle healthy connection survives.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// KeepAlive is the keepalive probe period. Zero disables probes.
	KeepAlive time.Duration

	// HandshakeTimeout bounds connection establishment.
	HandshakeTimeout time.Duration

	// TLSConfig is used by transports that speak TLS. The quic
	// transport self-signs a certificate when nil.
	TLSConfig *tls.Config
}

// DefaultConfig returns the settings used when the caller provides
// none.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:   4 << 20,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
		KeepAlive:        15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Conn is one established bidirectional message channel.
type Conn interface {
	// Send writes one envelope. Safe for concurrent use.
	Send(m *Message) error

	// Receive returns the next inbound envelope. It honors ctx and
	// returns ErrConnectionClosed once the channel is down.
	Receive(ctx context.Context) (*Message, error)

	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Done is closed when the connection is no longer usable.
	Done() <-chan struct{}
}

// Listener accepts inbound connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
}

// Transport is a way of establishing message channels.
type Transport interface {
	Name() string
	Listen(ctx context.Context, addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
	Close() error
}
