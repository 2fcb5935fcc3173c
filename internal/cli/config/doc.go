// Package config holds the protobee-cli settings.
//
// Settings come from ~/.protobee/cli.yaml, then PROTOBEE_SERVER,
// PROTOBEE_SERVER_KEY, PROTOBEE_CLIENT_KEY and PROTOBEE_OUTPUT, then
// command-line flags.
package config
