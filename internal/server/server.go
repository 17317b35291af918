// Package server hosts model instances for remote masters. Clients
// connect over websocket or quic, create instances, and drive them
// with the same lifecycle they would use locally.
package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
	"github.com/fmukit/fmukit/internal/core/protocol/quic"
	"github.com/fmukit/fmukit/internal/core/protocol/websocket"
)

// Transport names accepted in Config.Transports.
const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

// Server is a co-simulation server instance.
type Server struct {
	config Config
	logger log.Log

	transports []protocol.Transport
	listeners  []protocol.Listener

	// Session management
	sessions      sync.Map // map[string]*session
	sessionCount  int64    // atomic
	instanceCount int64    // atomic
	requestCount  uint64   // atomic

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	startedAt   time.Time
	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

// New creates a server. A nil logger builds one from the configured
// level.
func New(config Config, logger log.Log) *Server {
	if logger == nil {
		logger = log.New(log.ParseLevel(config.LogLevel))
	}

	s := &Server{
		config: config,
		logger: logger.With(log.String("component", "server")),
	}

	s.logger.Info("Server created",
		log.String("name", config.Name),
		log.Int("max_conns", config.MaxConns),
		log.Int("max_instances", config.MaxInstances))

	return s
}

// Start brings up the configured transports and background workers.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")
	s.stopChan = make(chan struct{})

	tcfg := protocol.DefaultConfig()
	for _, name := range s.config.Transports {
		var (
			tr   protocol.Transport
			addr string
		)
		switch name {
		case TransportWebSocket:
			tr = websocket.New(tcfg, s.logger)
			addr = s.config.websocketAddr()
		case TransportQUIC:
			tr = quic.New(tcfg, s.logger)
			addr = s.config.quicAddr()
		default:
			s.abortStart()
			return errors.Wrapf(ErrUnknownTransport, "%q", name)
		}

		ln, err := tr.Listen(ctx, addr)
		if err != nil {
			s.abortStart()
			return errors.Wrapf(err, "start %s transport", name)
		}
		s.transports = append(s.transports, tr)
		s.listeners = append(s.listeners, ln)

		s.logger.Info("Server listening",
			log.String("transport", name),
			log.String("addr", ln.Addr().String()))

		s.workerGroup.Add(1)
		go func(ln protocol.Listener) {
			defer s.workerGroup.Done()
			s.acceptConnections(ln)
		}(ln)
	}

	s.workerGroup.Add(1)
	go func() {
		defer s.workerGroup.Done()
		s.healthMonitor()
	}()

	s.startedAt = time.Now()
	s.logger.Info("Server started successfully")
	return nil
}

// abortStart rolls a half-started server back to stopped.
func (s *Server) abortStart() {
	close(s.stopChan)
	for _, tr := range s.transports {
		_ = tr.Close()
	}
	s.sessions.Range(func(_, value any) bool {
		value.(*session).shutdown()
		return true
	})
	s.workerGroup.Wait()
	s.transports = nil
	s.listeners = nil
	atomic.StoreInt32(&s.running, 0)
}

// Stop shuts the server down, bounded by ShutdownTimeout.
func (s *Server) Stop(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")
	close(s.stopChan)

	for _, tr := range s.transports {
		_ = tr.Close()
	}

	s.sessions.Range(func(_, value any) bool {
		value.(*session).shutdown()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.workerGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.ShutdownTimeout):
		s.logger.Warn("Shutdown timed out with workers still running")
	}

	s.transports = nil
	s.listeners = nil

	s.logger.Info("Server stopped")
	return nil
}

// Close stops the server and releases all resources. Safe to call
// more than once.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	}
	return nil
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Addrs returns the bound listener addresses in Transports order.
func (s *Server) Addrs() []string {
	addrs := make([]string, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr().String())
	}
	return addrs
}

// acceptConnections turns accepted connections into sessions until
// the listener closes.
func (s *Server) acceptConnections(ln protocol.Listener) {
	for {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			if atomic.LoadInt32(&s.running) == 0 || errors.Is(err, protocol.ErrTransportClosed) {
				return
			}
			s.logger.Error("Failed to accept connection", log.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if int(atomic.LoadInt64(&s.sessionCount)) >= s.config.MaxConns {
			s.logger.Warn("Maximum connections reached, rejecting",
				log.String("remote_addr", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		sess := newSession(s, conn)
		s.sessions.Store(sess.id, sess)
		atomic.AddInt64(&s.sessionCount, 1)

		s.logger.Info("Session opened",
			log.String("session_id", sess.id),
			log.String("remote_addr", conn.RemoteAddr().String()),
			log.Int64("total_sessions", atomic.LoadInt64(&s.sessionCount)))

		s.workerGroup.Add(1)
		go func() {
			defer s.workerGroup.Done()
			sess.run()
		}()
	}
}

// Stats contains a server statistics snapshot.
type Stats struct {
	Sessions  int64
	Instances int64
	Requests  uint64
	Uptime    time.Duration
	Running   bool
}

// Stats returns current server statistics.
func (s *Server) Stats() Stats {
	st := Stats{
		Sessions:  atomic.LoadInt64(&s.sessionCount),
		Instances: atomic.LoadInt64(&s.instanceCount),
		Requests:  atomic.LoadUint64(&s.requestCount),
		Running:   atomic.LoadInt32(&s.running) == 1,
	}
	if st.Running {
		st.Uptime = time.Since(s.startedAt)
	}
	return st
}

// healthMonitor reaps instances idle past InstanceIdleTimeout.
func (s *Server) healthMonitor() {
	s.logger.Debug("Health monitor started")

	ticker := time.NewTicker(s.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reapIdleInstances()
		case <-s.stopChan:
			s.logger.Debug("Health monitor stopped")
			return
		}
	}
}

func (s *Server) reapIdleInstances() {
	if s.config.InstanceIdleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.config.InstanceIdleTimeout)

	reaped := 0
	s.sessions.Range(func(_, value any) bool {
		reaped += value.(*session).reapIdle(cutoff)
		return true
	})

	if reaped > 0 {
		s.logger.Info("Idle instances reaped",
			log.Int("count", reaped),
			log.Int64("instances_left", atomic.LoadInt64(&s.instanceCount)))
	}
}
