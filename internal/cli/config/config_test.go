package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var (
	serverKey = strings.Repeat("0a", 32)
	clientKey = strings.Repeat("1b", 32)
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server != DefaultServer || cfg.Output != "table" {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_Priority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	content := "server: 10.0.0.1:7460\nserver_key: " + serverKey + "\noutput: yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROTOBEE_CLIENT_KEY", clientKey)
	t.Setenv("PROTOBEE_OUTPUT", "json")

	cfg, err := Load(path, map[string]any{"server": "10.0.0.2:7460"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server != "10.0.0.2:7460" {
		t.Errorf("Server = %q, flags should win", cfg.Server)
	}
	if cfg.ServerKey != serverKey {
		t.Errorf("ServerKey = %q, want value from file", cfg.ServerKey)
	}
	if cfg.ClientKey != clientKey {
		t.Errorf("ClientKey = %q, want value from env", cfg.ClientKey)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %q, env should override file", cfg.Output)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")
	want := &CLIConfig{Server: "h:1", ServerKey: serverKey, ClientKey: clientKey, Output: "json"}

	if err := Save(want, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	got, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Errorf("Load(Save(cfg)) = %+v, want %+v", got, want)
	}
}

func TestVerify(t *testing.T) {
	valid := CLIConfig{Server: DefaultServer, ServerKey: serverKey, ClientKey: clientKey, Output: "table"}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr bool
	}{
		{"valid", func(*CLIConfig) {}, false},
		{"no server", func(c *CLIConfig) { c.Server = "" }, true},
		{"no server key", func(c *CLIConfig) { c.ServerKey = "" }, true},
		{"short server key", func(c *CLIConfig) { c.ServerKey = "abcd" }, true},
		{"no client key", func(c *CLIConfig) { c.ClientKey = "" }, true},
		{"bad client key", func(c *CLIConfig) { c.ClientKey = "zz" }, true},
		{"bad output", func(c *CLIConfig) { c.Output = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := Verify(&cfg); (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := &CLIConfig{ServerKey: serverKey, ClientKey: clientKey}
	out := Sanitize(cfg)

	if out.ClientKey == clientKey || cfg.ClientKey != clientKey {
		t.Errorf("client key not masked on the copy: %q", out.ClientKey)
	}
	if out.ServerKey != serverKey {
		t.Error("server public key should stay visible")
	}
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	t.Setenv("PROTOBEE_SERVER", "from-env:1")

	if err := Set(path, "server_key", serverKey); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := Set(path, "output", "yaml"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "from-env") {
		t.Errorf("Set() saved environment values:\n%s", data)
	}

	cfg, err := Load(path, map[string]any{"server": DefaultServer})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerKey != serverKey || cfg.Output != "yaml" {
		t.Errorf("after Set() config = %+v", cfg)
	}

	for _, tc := range []struct{ key, value string }{
		{"nope", "x"},
		{"client_key", "zz"},
		{"output", "xml"},
	} {
		if err := Set(path, tc.key, tc.value); err == nil {
			t.Errorf("Set(%q, %q) should fail", tc.key, tc.value)
		}
	}
}
