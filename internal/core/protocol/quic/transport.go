// Package quic carries co-simulation envelopes over QUIC. Each
// connection uses a single bidirectional stream; the dialer opens it
// and the listener adopts it when the first frame arrives.
package quic

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
)

const alpnProtocol = "fmukit-cosim"

var _ protocol.Transport = (*Transport)(nil)

// Transport establishes QUIC message channels. When no TLS config is
// supplied, listeners self-sign a certificate and dialers skip
// verification, which keeps local setups free of key material.
type Transport struct {
	cfg    protocol.Config
	logger log.Log

	mu        sync.Mutex
	listeners []*Listener
	closed    int32
}

// New returns a transport using cfg. A nil logger falls back to the
// process logger.
func New(cfg protocol.Config, logger log.Log) *Transport {
	if logger == nil {
		logger = log.Provide()
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With(log.String("transport", "quic")),
	}
}

// Name returns the transport name.
func (t *Transport) Name() string { return "quic" }

// Listen binds a UDP address and accepts QUIC connections on it.
func (t *Transport) Listen(_ context.Context, addr string) (protocol.Listener, error) {
	if atomic.LoadInt32(&t.closed) == 1 {
		return nil, protocol.ErrTransportClosed
	}

	tlsConf := t.cfg.TLSConfig
	if tlsConf == nil {
		var err error
		if tlsConf, err = SelfSignedTLSConfig(); err != nil {
			return nil, err
		}
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{alpnProtocol}
	}

	ql, err := quic.ListenAddr(addr, tlsConf, t.quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	lctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		transport: t,
		ql:        ql,
		logger:    t.logger.With(log.String("address", ql.Addr().String())),
		ctx:       lctx,
		cancel:    cancel,
		incoming:  make(chan protocol.Conn, 16),
	}
	go l.acceptLoop()

	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()

	l.logger.Info("QUIC transport listening")
	return l, nil
}

// Dial connects to addr and opens the message stream.
func (t *Transport) Dial(ctx context.Context, addr string) (protocol.Conn, error) {
	if atomic.LoadInt32(&t.closed) == 1 {
		return nil, protocol.ErrTransportClosed
	}

	tlsConf := t.cfg.TLSConfig
	if tlsConf == nil {
		// The self-signed listener default leaves nothing to verify.
		tlsConf = &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS13,
		}
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{alpnProtocol}
	}

	qc, err := quic.DialAddr(ctx, addr, tlsConf, t.quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(codeProtocolError, "open stream")
		return nil, errors.Wrap(err, "open stream")
	}
	return newConn(qc, stream, t.cfg, t.logger), nil
}

// Close shuts down every listener opened through this transport.
// Established connections are closed by their owners.
func (t *Transport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}

	t.mu.Lock()
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	var first error
	for _, l := range listeners {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *Transport) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       t.cfg.ReadTimeout,
		KeepAlivePeriod:      t.cfg.KeepAlive,
		HandshakeIdleTimeout: t.cfg.HandshakeTimeout,
	}
}

var _ protocol.Listener = (*Listener)(nil)

// Listener hands adopted connections to Accept.
type Listener struct {
	transport *Transport
	ql        *quic.Listener
	logger    log.Log

	ctx      context.Context
	cancel   context.CancelFunc
	incoming chan protocol.Conn
	closed   int32
}

// Accept returns the next inbound connection.
func (l *Listener) Accept(ctx context.Context) (protocol.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, protocol.ErrTransportClosed
	}
}

// Close stops accepting and discards connections nobody accepted.
func (l *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	l.cancel()
	err := l.ql.Close()

	for {
		select {
		case c := <-l.incoming:
			_ = c.Close()
		default:
			return err
		}
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

func (l *Listener) acceptLoop() {
	for {
		qc, err := l.ql.Accept(l.ctx)
		if err != nil {
			return
		}
		go l.adopt(qc)
	}
}

// adopt waits for the dialer to open its stream, which surfaces with
// the first frame it sends.
func (l *Listener) adopt(qc *quic.Conn) {
	ctx := l.ctx
	if d := l.transport.cfg.HandshakeTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		l.logger.Warn("Peer opened no stream", log.Error(err))
		_ = qc.CloseWithError(codeProtocolError, "no stream opened")
		return
	}

	c := newConn(qc, stream, l.transport.cfg, l.logger)
	select {
	case l.incoming <- c:
	case <-l.ctx.Done():
		_ = c.Close()
	}
}
