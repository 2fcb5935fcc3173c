// Package domain defines the core domain models for protobee.
//
// Domain models are pure value objects without any IO dependencies.
// This package contains:
//
//   - Node, HistoryEntry, DiffEntry, Header: entries returned by the store
//   - Range and the option structs accepted by reads and writes
//   - Session: one authenticated client connection
//   - Errors: coded errors shared by the server and the client
package domain
