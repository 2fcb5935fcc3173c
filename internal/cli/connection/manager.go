package connection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/LuKks/protobee/internal/cli/config"
	"github.com/LuKks/protobee/internal/transport"
	"github.com/LuKks/protobee/pkg/client"
)

// Manager lazily opens one client per CLI invocation.
type Manager struct {
	cfg    *config.CLIConfig
	logger *slog.Logger
	opts   []client.Option

	mu sync.Mutex
	db *client.DB
}

// NewManager creates a manager for cfg. Extra options are passed to the
// client after the address and logger.
func NewManager(cfg *config.CLIConfig, logger *slog.Logger, opts ...client.Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger, opts: opts}
}

// Config returns the settings the manager connects with.
func (m *Manager) Config() *config.CLIConfig {
	return m.cfg
}

// Connect opens the client on first use and returns it afterwards.
func (m *Manager) Connect(ctx context.Context) (*client.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}
	if err := config.Verify(m.cfg); err != nil {
		return nil, err
	}

	serverKey, err := transport.DecodeKey(m.cfg.ServerKey)
	if err != nil {
		return nil, err
	}
	clientKey, err := transport.DecodeKey(m.cfg.ClientKey)
	if err != nil {
		return nil, err
	}

	opts := append([]client.Option{
		client.WithAddress(m.cfg.Server),
		client.WithLogger(m.logger),
	}, m.opts...)

	db, err := client.Open(ctx, serverKey, clientKey, opts...)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("connected", "server", m.cfg.Server, "version", db.Version())
	m.db = db
	return db, nil
}

// IsConnected reports whether a client is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db != nil
}

// Close closes the client if one was opened.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	db := m.db
	m.db = nil
	m.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close(ctx)
}
