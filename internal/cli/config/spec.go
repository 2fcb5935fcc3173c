package config

// DefaultServer is the address of a local protobee-server.
const DefaultServer = "127.0.0.1:7460"

// CLIConfig is the configuration for protobee-cli.
type CLIConfig struct {
	// Server is the host:port of protobee-server.
	Server string `koanf:"server" yaml:"server" json:"server"`
	// ServerKey is the hex encoded server public key.
	ServerKey string `koanf:"server_key" yaml:"server_key" json:"server_key"`
	// ClientKey is the hex encoded client primary key.
	ClientKey string `koanf:"client_key" yaml:"client_key" json:"client_key"`
	// Output is table, json or yaml.
	Output string `koanf:"output" yaml:"output" json:"output"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server: DefaultServer,
		Output: "table",
	}
}
