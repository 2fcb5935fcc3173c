package config

import "time"

// ServerConfig is the root configuration for protobee-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
	Tracing  TracingSection  `koanf:"tracing"`
}

// ServerSection configures the RPC listener and the metrics endpoint.
type ServerSection struct {
	Addr             string        `koanf:"addr"`
	KeepAlive        time.Duration `koanf:"keepalive"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	// RateLimit is requests per second per connection, 0 disables it.
	RateLimit int `koanf:"rate_limit"`
	RateBurst int `koanf:"rate_burst"`
	// MetricsAddr serves /metrics and /healthz. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`
	// MetricsAllow restricts /metrics and the operator endpoints to these
	// IPs or CIDR blocks.
	MetricsAllow []string `koanf:"metrics_allow"`
}

// StorageSection configures the engine.
type StorageSection struct {
	DataDir     string  `koanf:"data_dir"`
	InMemory    bool    `koanf:"in_memory"`
	SyncWrites  bool    `koanf:"sync_writes"`
	GCInterval  string  `koanf:"gc_interval"`
	GCThreshold float64 `koanf:"gc_threshold"`
	CacheSize   int64   `koanf:"cache_size"`
}

// SecuritySection holds the primary key. PrimaryKey wins over
// PrimaryKeyFile; with neither set the key lives in data_dir/primary-key.
type SecuritySection struct {
	PrimaryKey     string `koanf:"primary_key"`
	PrimaryKeyFile string `koanf:"primary_key_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TracingSection configures OTLP export. Empty endpoint disables it.
type TracingSection struct {
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}
