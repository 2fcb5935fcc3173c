package config

import "time"

// Default configuration values.
const (
	DefaultAddr             = "127.0.0.1:7460"
	DefaultKeepAlive        = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMetricsAddr      = "127.0.0.1:7461"

	DefaultDataDir     = "/var/lib/protobee"
	DefaultGCInterval  = "10m"
	DefaultGCThreshold = 0.5
	DefaultCacheSize   = 64 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultTracingProtocol    = "http"
	DefaultTracingServiceName = "protobee-server"

	// PrimaryKeyFileName is the key file created in data_dir.
	PrimaryKeyFileName = "primary-key"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:             DefaultAddr,
			KeepAlive:        DefaultKeepAlive,
			HandshakeTimeout: DefaultHandshakeTimeout,
			MetricsAddr:      DefaultMetricsAddr,
		},
		Storage: StorageSection{
			DataDir:     DefaultDataDir,
			SyncWrites:  true,
			GCInterval:  DefaultGCInterval,
			GCThreshold: DefaultGCThreshold,
			CacheSize:   DefaultCacheSize,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: TracingSection{
			Protocol:    DefaultTracingProtocol,
			ServiceName: DefaultTracingServiceName,
		},
	}
}
