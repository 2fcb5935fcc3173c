// Package tracer provides distributed tracing for protobee.
//
// This package implements OpenTelemetry tracing support:
//
//   - otel.go: provider setup with OTLP/HTTP or OTLP/gRPC export
//
// The server opens one span per dispatched RPC named "protobee.<method>".
// Without a configured endpoint spans are created but never exported.
package tracer
