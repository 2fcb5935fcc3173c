package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/internal/transport"
)

// Verify validates the configuration and creates the data directory.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	switch cfg.Tracing.Protocol {
	case "", "http", "grpc":
	default:
		return fmt.Errorf("tracing.protocol %q is not one of http, grpc", cfg.Tracing.Protocol)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("server.metrics_addr: %w", err)
		}
		if cfg.MetricsAddr == cfg.Addr {
			return errors.New("server.metrics_addr must differ from server.addr")
		}
	}
	if cfg.KeepAlive < 0 || cfg.HandshakeTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("server.rate_limit and server.rate_burst must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.GCThreshold < 0 || cfg.GCThreshold > 1 {
		return errors.New("storage.gc_threshold must be between 0 and 1")
	}
	if cfg.GCInterval != "" {
		if _, err := time.ParseDuration(cfg.GCInterval); err != nil {
			return fmt.Errorf("storage.gc_interval: %w", err)
		}
	}
	if cfg.InMemory {
		return nil
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.PrimaryKey == "" {
		return nil
	}
	if _, err := transport.DecodeKey(cfg.PrimaryKey); err != nil {
		return fmt.Errorf("security.primary_key: %w", err)
	}
	return nil
}
