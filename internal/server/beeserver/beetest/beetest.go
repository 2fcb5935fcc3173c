// Package beetest starts in-memory protobee servers for tests.
package beetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/LuKks/protobee/internal/server/beeserver"
	"github.com/LuKks/protobee/internal/storage"
	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/internal/telemetry/metric"
	"github.com/LuKks/protobee/internal/transport"
)

// Server is a running in-memory server.
type Server struct {
	*beeserver.Server
	Engine  *storage.Engine
	Metrics *metric.Registry
}

// Start serves a fresh in-memory engine on a loopback port. Everything is
// released when the test ends.
func Start(t testing.TB, opts ...func(*beeserver.Config)) *Server {
	t.Helper()

	engine, err := storage.Open(storage.Config{InMemory: true}, logger.Discard())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}

	cfg := beeserver.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.PrimaryKey = bytes.Repeat([]byte{3}, transport.KeyLength)
	for _, opt := range opts {
		opt(cfg)
	}

	metrics := metric.NewRegistry()
	srv, err := beeserver.New(cfg, engine, metrics, logger.Discard())
	if err != nil {
		engine.Close()
		t.Fatalf("beeserver.New() error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		engine.Close()
		t.Fatalf("Start() error = %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		engine.Close()
	})
	return &Server{Server: srv, Engine: engine, Metrics: metrics}
}

// Address returns the listen address as host:port.
func (s *Server) Address() string {
	return s.Addr().String()
}

// ServerKey returns the hex server public key.
func (s *Server) ServerKey() string {
	return transport.EncodeKey(s.PublicKey())
}

// ClientKey returns the hex client primary key.
func (s *Server) ClientKey() string {
	return transport.EncodeKey(s.ClientPrimaryKey())
}
