// Package config defines the protobee server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of key material for display
//   - keys.go: primary key resolution
//   - convert.go: mapping onto component configurations
//
// Configuration is loaded by internal/infra/confloader from a YAML file,
// PROTOBEE_ environment variables and flags.
package config
