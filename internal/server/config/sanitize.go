package config

import "github.com/LuKks/protobee/internal/telemetry/logger"

// Sanitize returns a copy of the config with key material masked, for
// logging and display.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	if sanitized.Security.PrimaryKey != "" {
		sanitized.Security.PrimaryKey = logger.MaskKey(sanitized.Security.PrimaryKey)
	}
	return &sanitized
}
