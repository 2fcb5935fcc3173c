package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/LuKks/protobee/internal/cli/output"
	"github.com/LuKks/protobee/internal/infra/confloader"
	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/internal/transport"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".protobee", "cli.yaml")
	}
	return filepath.Join(homeDir, ".protobee", "cli.yaml")
}

// Load reads the config file (a missing file is not an error), applies
// environment variables and then overrides, keyed like the yaml file.
func Load(path string, overrides map[string]any) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	opts := []confloader.Option{confloader.WithFlatEnv()}
	if _, err := os.Stat(path); err == nil {
		opts = append(opts, confloader.WithConfigFile(path))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg := Default()
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Save writes cfg to path, readable only by the owner.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Keys lists the settable configuration keys.
var Keys = []string{"server", "server_key", "client_key", "output"}

// Set stores one key in the config file at path, creating it if needed.
// Environment variables are not merged into the saved file.
func Set(path, key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown config key %q (want one of %v)", key, Keys)
	}
	switch key {
	case "server_key", "client_key":
		if _, err := transport.DecodeKey(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	case "output":
		if _, err := output.ParseFormat(value); err != nil {
			return err
		}
	}
	if path == "" {
		path = DefaultConfigPath()
	}

	loader := confloader.NewLoader()
	if _, err := os.Stat(path); err == nil {
		if err := loader.LoadFile(path); err != nil {
			return err
		}
	}
	if err := loader.LoadMap(map[string]any{key: value}); err != nil {
		return err
	}
	cfg := Default()
	if err := loader.Unmarshal(cfg); err != nil {
		return err
	}
	return Save(cfg, path)
}

// Verify checks that cfg can be used to connect.
func Verify(cfg *CLIConfig) error {
	if cfg.Server == "" {
		return errors.New("server address is required")
	}
	if cfg.ServerKey == "" {
		return errors.New("server key is required (--server-key or PROTOBEE_SERVER_KEY)")
	}
	if _, err := transport.DecodeKey(cfg.ServerKey); err != nil {
		return fmt.Errorf("server key: %w", err)
	}
	if cfg.ClientKey == "" {
		return errors.New("client key is required (--client-key or PROTOBEE_CLIENT_KEY)")
	}
	if _, err := transport.DecodeKey(cfg.ClientKey); err != nil {
		return fmt.Errorf("client key: %w", err)
	}
	if _, err := output.ParseFormat(cfg.Output); err != nil {
		return err
	}
	return nil
}

// Sanitize returns a copy with the client key masked.
func Sanitize(cfg *CLIConfig) *CLIConfig {
	out := *cfg
	if out.ClientKey != "" {
		out.ClientKey = logger.MaskKey(out.ClientKey)
	}
	return &out
}
