// Package client provides the remote master SDK: a connection to a
// co-simulation server and handles that drive model instances over it
// with the same surface the in-process API offers.
package client

import (
	"context"
	"crypto/tls"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
	"github.com/fmukit/fmukit/internal/core/protocol/quic"
	"github.com/fmukit/fmukit/internal/core/protocol/websocket"
)

// Config holds configuration for the client
type Config struct {
	// Connection settings
	ServerAddr     string
	Transport      string // "websocket" or "quic"
	ConnectTimeout time.Duration

	// RequestTimeout bounds each call on top of the caller's context.
	// Zero disables the extra bound.
	RequestTimeout time.Duration

	// TLSConfig applies to wss and quic dials. Nil uses the
	// transport's defaults.
	TLSConfig *tls.Config

	// Logging
	LogLevel log.Level
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		ServerAddr:     "localhost:8080",
		Transport:      "websocket",
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 10 * time.Second,
		LogLevel:       log.LevelInfo,
	}
}

// EventHandler receives unsolicited server events, in arrival order.
type EventHandler func(msg *protocol.Message)

// Client is a connection to a co-simulation server.
type Client struct {
	conn      protocol.Conn
	transport protocol.Transport

	// In-flight requests by message id.
	pending   map[string]chan *protocol.Message
	pendingMu sync.Mutex

	eventHandler EventHandler
	handlerMu    sync.RWMutex

	// Lifecycle
	connected int32 // atomic bool
	closed    int32 // atomic bool
	done      chan struct{}

	config Config
	logger log.Log

	workerGroup sync.WaitGroup
}

// New creates a client. Connect establishes the session.
func New(config Config) *Client {
	logger := log.New(config.LogLevel)

	return &Client{
		pending: make(map[string]chan *protocol.Message),
		done:    make(chan struct{}),
		config:  config,
		logger:  logger.With(log.String("component", "client")),
	}
}

// OnEvent registers the handler for unsolicited server events, such
// as instance reap notices. Call before Connect.
func (c *Client) OnEvent(handler EventHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandler = handler
}

// Connect dials the server and verifies the session with a ping. The
// ping also carries the first frame a quic listener waits for before
// it surfaces the connection.
func (c *Client) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if !atomic.CompareAndSwapInt32(&c.connected, 0, 1) {
		return ErrAlreadyConnected
	}

	c.logger.Info("Connecting to server",
		log.String("addr", c.config.ServerAddr),
		log.String("transport", c.config.Transport))

	cfg := protocol.DefaultConfig()
	cfg.TLSConfig = c.config.TLSConfig

	var err error
	switch strings.ToLower(c.config.Transport) {
	case "websocket", "ws", "wss", "":
		c.transport = websocket.New(cfg, c.logger)
	case "quic":
		c.transport = quic.New(cfg, c.logger)
	default:
		atomic.StoreInt32(&c.connected, 0)
		return errors.Wrapf(ErrUnknownTransport, "%q", c.config.Transport)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	c.conn, err = c.transport.Dial(connectCtx, c.config.ServerAddr)
	if err != nil {
		atomic.StoreInt32(&c.connected, 0)
		c.logger.Error("Failed to connect to server",
			log.String("addr", c.config.ServerAddr),
			log.Error(err))
		return errors.Wrapf(err, "dial %s", c.config.ServerAddr)
	}

	c.workerGroup.Add(1)
	go func() {
		defer c.workerGroup.Done()
		c.receiveLoop()
	}()

	if _, err = c.Ping(connectCtx); err != nil {
		_ = c.conn.Close()
		c.workerGroup.Wait()
		atomic.StoreInt32(&c.connected, 0)
		return errors.Wrap(err, "verify connection")
	}

	c.logger.Info("Connected to server",
		log.String("remote_addr", c.conn.RemoteAddr().String()))
	return nil
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	atomic.StoreInt32(&c.connected, 0)
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.transport != nil {
		_ = c.transport.Close()
	}
	c.workerGroup.Wait()

	c.logger.Info("Client closed")
	return nil
}

// IsConnected returns true while the session is usable.
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1 && atomic.LoadInt32(&c.closed) == 0
}

// Ping round-trips with the server and returns the latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := c.call(ctx, protocol.ActionPing, "", nil)
	if err != nil {
		return 0, err
	}
	var pong protocol.PingResponse
	if err = resp.Bind(&pong); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// ListModels returns the models registered on the server.
func (c *Client) ListModels(ctx context.Context) ([]protocol.ModelInfo, error) {
	resp, err := c.call(ctx, protocol.ActionListModels, "", nil)
	if err != nil {
		return nil, err
	}
	var out protocol.ListModelsResponse
	if err = resp.Bind(&out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// DescribeModel fetches and parses a model description.
func (c *Client) DescribeModel(ctx context.Context, model string) (*modeldesc.Description, error) {
	resp, err := c.call(ctx, protocol.ActionDescribeModel, "",
		protocol.DescribeModelRequest{Model: model})
	if err != nil {
		return nil, err
	}
	var out protocol.DescribeModelResponse
	if err = resp.Bind(&out); err != nil {
		return nil, err
	}
	desc, err := modeldesc.Parse(strings.NewReader(out.ModelXML))
	if err != nil {
		return nil, errors.Wrapf(err, "describe %s", model)
	}
	return desc, nil
}

// InstantiateOption customizes an Instantiate request.
type InstantiateOption func(*protocol.InstantiateRequest)

// WithName sets the instance name instead of a generated one.
func WithName(name string) InstantiateOption {
	return func(req *protocol.InstantiateRequest) { req.Name = name }
}

// WithLogging enables the instance's debug log categories.
func WithLogging(on bool) InstantiateOption {
	return func(req *protocol.InstantiateRequest) { req.LoggingOn = on }
}

// Instantiate creates a model instance on the server.
func (c *Client) Instantiate(ctx context.Context, model string, opts ...InstantiateOption) (*RemoteInstance, error) {
	req := protocol.InstantiateRequest{Model: model}
	for _, opt := range opts {
		opt(&req)
	}

	resp, err := c.call(ctx, protocol.ActionInstantiate, "", req)
	if err != nil {
		return nil, err
	}
	var out protocol.InstantiateResponse
	if err = resp.Bind(&out); err != nil {
		return nil, err
	}

	c.logger.Debug("Instance created",
		log.String("handle", out.Instance),
		log.String("model", out.Model))

	return &RemoteInstance{
		client: c,
		handle: out.Instance,
		name:   out.Name,
		model:  out.Model,
	}, nil
}

// call sends one request and waits for its response. Wire failures
// carried in error responses come back as reconstructed sentinels.
func (c *Client) call(ctx context.Context, action protocol.Action, instance string, payload any) (*protocol.Message, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, ErrClientClosed
	}
	if atomic.LoadInt32(&c.connected) == 0 {
		return nil, ErrNotConnected
	}

	req, err := protocol.NewRequest(action, instance, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Message, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	if err = c.conn.Send(req); err != nil {
		return nil, errors.Wrapf(err, "send %s", action)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, protocol.ErrConnectionClosed
		}
		if resp.IsError() {
			return nil, resp.Err()
		}
		return resp, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s", action)
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// receiveLoop routes responses to their waiting calls and events to
// the registered handler.
func (c *Client) receiveLoop() {
	for {
		msg, err := c.conn.Receive(context.Background())
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.logger.Warn("Connection lost", log.Error(err))
			}
			atomic.StoreInt32(&c.connected, 0)
			c.failPending()
			return
		}

		switch msg.Kind {
		case protocol.KindResponse, protocol.KindError:
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- msg
			} else {
				c.logger.Debug("Dropping unmatched response", log.String("message_id", msg.ID))
			}
		case protocol.KindEvent:
			c.handlerMu.RLock()
			handler := c.eventHandler
			c.handlerMu.RUnlock()
			if handler != nil {
				handler(msg)
			}
		default:
			c.logger.Warn("Unexpected frame from server", log.String("kind", string(msg.Kind)))
		}
	}
}

// failPending wakes every in-flight call after the connection dies.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
