// Package main provides the entry point for protobee-server.
//
// protobee-server hosts one bee (an append-only, versioned key/value log)
// on badger and serves it to remote clients over an encrypted JSON-RPC
// connection. An optional HTTP listener exposes health probes, Prometheus
// metrics and a few operator endpoints.
//
// On first start the client primary key is generated and stored next to the
// data. Both keys a client needs are printed at startup and with
// -print-keys.
package main
