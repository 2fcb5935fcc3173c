// Package beeserver serves a storage engine to remote protobee clients.
//
// Each authenticated connection carries one JSON-RPC 2.0 stream. Requests
// are dispatched concurrently and address either the root database or an
// instance (batch, checkout, snapshot) registered by the same connection.
// Scans are exposed as stream handles that the client drains with
// stream-read. Everything a connection registered is released when it goes
// away.
package beeserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/registry"
	"github.com/LuKks/protobee/internal/storage"
	"github.com/LuKks/protobee/internal/telemetry/metric"
	"github.com/LuKks/protobee/internal/transport"
	"github.com/LuKks/protobee/pkg/cmap"
)

// Config holds the protobee server configuration.
type Config struct {
	// Address is the TCP listen address.
	Address string
	// PrimaryKey is the 32 byte secret both identities are derived from.
	PrimaryKey []byte
	// KeepAlive is the liveness probe interval (default: 5s).
	KeepAlive time.Duration
	// HandshakeTimeout bounds authentication and channel setup (default: 10s).
	HandshakeTimeout time.Duration
	// RateLimit is the maximum number of requests per second per connection.
	// Set to 0 to disable rate limiting.
	RateLimit int
	// RateBurst is the limiter bucket size (default: RateLimit).
	RateBurst int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:          "127.0.0.1:7460",
		KeepAlive:        5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Server accepts protobee connections for one storage engine.
type Server struct {
	cfg     *Config
	engine  *storage.Engine
	keys    transport.Keys
	logger  *slog.Logger
	metrics *metric.Registry

	ln       *transport.Listener
	sessions *cmap.Map[string, *session]

	instances *registry.Registry[*session, storage.Instance]
	streams   *registry.Registry[*session, streamHandle]

	cancelAppend func()
	running      atomic.Bool
	wg           sync.WaitGroup
}

// New creates a server for engine. A nil metrics registry disables export.
func New(cfg *Config, engine *storage.Engine, metrics *metric.Registry, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.NewRegistry()
	}

	keys, err := transport.DeriveKeys(cfg.PrimaryKey)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		engine:    engine,
		keys:      keys,
		logger:    logger.With("component", "beeserver"),
		metrics:   metrics,
		sessions:  cmap.New[string, *session](),
		instances: registry.New[*session, storage.Instance](),
		streams:   registry.New[*session, streamHandle](),
	}, nil
}

// PublicKey returns the server identity clients dial.
func (s *Server) PublicKey() []byte { return s.keys.Server.Public }

// ClientPrimaryKey returns the secret of the single client the firewall admits.
func (s *Server) ClientPrimaryKey() []byte { return s.keys.ClientPrimaryKey }

// Addr returns the listen address once started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start listens and serves connections in the background.
func (s *Server) Start(ctx context.Context) error {
	tcfg := &transport.Config{
		KeepAlive:        s.cfg.KeepAlive,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}
	ln, err := transport.Listen(s.cfg.Address, s.keys.Server, transport.AllowOnly(s.keys.Client.Public), tcfg, s.logger)
	if err != nil {
		return err
	}
	s.ln = ln
	s.cancelAppend = s.engine.OnAppend(s.onAppend)
	s.running.Store(true)

	s.logger.Info("protobee server listening",
		"address", ln.Addr().String(),
		"server_public_key", transport.EncodeKey(s.keys.Server.Public))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx); err != nil && s.running.Load() {
			s.logger.Error("accept loop error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting, closes every connection and waits for their
// resources to be released.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if err := s.ln.Close(); err != nil {
		firstErr = err
	}
	if s.cancelAppend != nil {
		s.cancelAppend()
	}
	for _, sess := range s.sessions.All() {
		sess.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

// Running reports whether the server accepts connections.
func (s *Server) Running() bool { return s.running.Load() }

// Connections returns the number of open sessions.
func (s *Server) Connections() int { return s.sessions.Count() }

// Instances returns the number of live batches, checkouts and snapshots.
func (s *Server) Instances() int { return s.instances.Len() }

// Streams returns the number of open stream handles.
func (s *Server) Streams() int { return s.streams.Len() }

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, nc)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	tc, err := s.ln.Handshake(ctx, nc)
	if err != nil {
		reason := "transport"
		if errors.Is(err, domain.ErrFirewall) {
			reason = "firewall"
		}
		s.metrics.RecordHandshakeFailure(reason)
		s.logger.Warn("handshake failed", "remote_addr", nc.RemoteAddr().String(), "reason", reason, "error", err)
		return
	}
	s.metrics.IncConnectionsAccepted()

	sess, err := newSession(s, tc)
	if err != nil {
		s.logger.Error("create session", "error", err)
		tc.Close()
		return
	}

	s.sessions.Set(sess.ID, sess)
	sess.serve(ctx)
	s.sessions.Delete(sess.ID)
}

// onAppend runs on the commit path; it only flags each session for a push.
func (s *Server) onAppend() {
	for _, sess := range s.sessions.All() {
		sess.schedulePush()
	}
}
