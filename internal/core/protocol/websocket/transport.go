// Package websocket carries co-simulation envelopes over WebSocket
// text frames. The listener is an HTTP server upgrading connections
// on EndpointPath; a /healthz endpoint answers liveness probes.
package websocket

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
)

// EndpointPath is the HTTP path connections are upgraded on.
const EndpointPath = "/cosim"

var _ protocol.Transport = (*Transport)(nil)

// Transport establishes WebSocket message channels.
type Transport struct {
	cfg      protocol.Config
	logger   log.Log
	upgrader websocket.Upgrader

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
		logger: logger.With(log.String("transport", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				// Peers are co-simulation tools, not browsers.
				return true
			},
		},
	}
}

// Name returns the transport name.
func (t *Transport) Name() string { return "websocket" }

// Listen binds addr and serves upgrades until the listener closes.
func (t *Transport) Listen(_ context.Context, addr string) (protocol.Listener, error) {
	if atomic.LoadInt32(&t.closed) == 1 {
		return nil, protocol.ErrTransportClosed
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	l := &Listener{
		transport: t,
		ln:        ln,
		logger:    t.logger.With(log.String("address", ln.Addr().String())),
		incoming:  make(chan protocol.Conn, 16),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(EndpointPath, l.handleUpgrade)
	mux.HandleFunc("/healthz", handleHealth)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: t.cfg.HandshakeTimeout,
	}

	go func() {
		var serveErr error
		if t.cfg.TLSConfig != nil {
			l.srv.TLSConfig = t.cfg.TLSConfig
			serveErr = l.srv.ServeTLS(ln, "", "")
		} else {
			serveErr = l.srv.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			l.logger.Error("WebSocket server error", log.Error(serveErr))
		}
	}()

	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()

	l.logger.Info("WebSocket transport listening")
	return l, nil
}

// Dial connects to addr. Bare host:port addresses get a ws:// (or
// wss:// when TLS is configured) scheme and the default endpoint path.
func (t *Transport) Dial(ctx context.Context, addr string) (protocol.Conn, error) {
	if atomic.LoadInt32(&t.closed) == 1 {
		return nil, protocol.ErrTransportClosed
	}

	target, err := dialURL(addr, t.cfg.TLSConfig != nil)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
		TLSClientConfig:  t.cfg.TLSConfig,
	}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", target)
	}
	return newConn(ws, t.cfg, t.logger), nil
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

func dialURL(addr string, secure bool) (string, error) {
	if !strings.Contains(addr, "://") {
		scheme := "ws"
		if secure {
			scheme = "wss"
		}
		addr = scheme + "://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", errors.Wrap(err, "parse address")
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = EndpointPath
	}
	return u.String(), nil
}

var _ protocol.Listener = (*Listener)(nil)

// Listener hands upgraded connections to Accept.
type Listener struct {
	transport *Transport
	srv       *http.Server
	ln        net.Listener
	logger    log.Log

	incoming chan protocol.Conn
	done     chan struct{}
	closed   int32
}

// Accept returns the next inbound connection.
func (l *Listener) Accept(ctx context.Context) (protocol.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, protocol.ErrTransportClosed
	}
}

// Close stops the HTTP server and discards connections nobody
// accepted.
func (l *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	close(l.done)
	err := l.srv.Close()

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
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.transport.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("Upgrade failed", log.Error(err))
		return
	}

	c := newConn(ws, l.transport.cfg, l.logger)
	select {
	case l.incoming <- c:
	case <-l.done:
		_ = c.Close()
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
