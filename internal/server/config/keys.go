package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/LuKks/protobee/internal/transport"
)

// PrimaryKeyPath returns the key file used when no explicit key is set.
// It is empty for in-memory servers without a configured file.
func PrimaryKeyPath(cfg *ServerConfig) string {
	if cfg.Security.PrimaryKeyFile != "" {
		return cfg.Security.PrimaryKeyFile
	}
	if cfg.Storage.InMemory {
		return ""
	}
	return filepath.Join(cfg.Storage.DataDir, PrimaryKeyFileName)
}

// PrimaryKey resolves the server primary key. An explicit hex key wins.
// Otherwise the key file is read, or created with a fresh key on first
// start. In-memory servers without a key file get an ephemeral key.
// created reports whether a new key was generated.
func PrimaryKey(cfg *ServerConfig) (key []byte, created bool, err error) {
	if cfg.Security.PrimaryKey != "" {
		key, err = transport.DecodeKey(cfg.Security.PrimaryKey)
		if err != nil {
			return nil, false, fmt.Errorf("security.primary_key: %w", err)
		}
		return key, false, nil
	}

	path := PrimaryKeyPath(cfg)
	if path == "" {
		key, err = transport.GenerateKey()
		return key, err == nil, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		key, err = transport.DecodeKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, false, fmt.Errorf("read primary key %s: %w", path, err)
		}
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("read primary key %s: %w", path, err)
	}

	key, err = transport.GenerateKey()
	if err != nil {
		return nil, false, err
	}
	if err := writeKeyFile(path, key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func writeKeyFile(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create primary key %s: %w", path, err)
	}
	if _, err := f.WriteString(transport.EncodeKey(key) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write primary key %s: %w", path, err)
	}
	return f.Close()
}
