package config

import (
	"os"

	"github.com/LuKks/protobee/internal/server/beeserver"
	"github.com/LuKks/protobee/internal/storage"
	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/internal/telemetry/tracer"
)

// ToStorageConfig maps the storage section onto the engine configuration.
func ToStorageConfig(cfg *ServerConfig) storage.Config {
	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.InMemory = cfg.Storage.InMemory
	sc.Badger.SyncWrites = cfg.Storage.SyncWrites
	if cfg.Storage.GCInterval != "" {
		sc.Badger.GCInterval = cfg.Storage.GCInterval
	}
	if cfg.Storage.GCThreshold > 0 {
		sc.Badger.GCThreshold = cfg.Storage.GCThreshold
	}
	if cfg.Storage.CacheSize > 0 {
		sc.Badger.CacheSize = cfg.Storage.CacheSize
	}
	return sc
}

// ToServerConfig maps the server section onto the RPC server configuration.
func ToServerConfig(cfg *ServerConfig, primaryKey []byte) *beeserver.Config {
	bc := beeserver.DefaultConfig()
	bc.Address = cfg.Server.Addr
	bc.PrimaryKey = primaryKey
	if cfg.Server.KeepAlive > 0 {
		bc.KeepAlive = cfg.Server.KeepAlive
	}
	if cfg.Server.HandshakeTimeout > 0 {
		bc.HandshakeTimeout = cfg.Server.HandshakeTimeout
	}
	bc.RateLimit = cfg.Server.RateLimit
	bc.RateBurst = cfg.Server.RateBurst
	return bc
}

// ToLoggerConfig maps the log section onto the logger configuration.
func ToLoggerConfig(cfg *ServerConfig) logger.Config {
	return logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}
}

// ToTracerConfig maps the tracing section onto the tracer configuration.
func ToTracerConfig(cfg *ServerConfig) tracer.Config {
	return tracer.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
	}
}
