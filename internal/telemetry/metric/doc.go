// Package metric provides Prometheus metrics for protobee.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, request and push counters, HTTP handler
//   - collector.go: scrape-time gauges for connections, instances and streams
//
// Storage gauges are registered by the storage engine itself through
// Registry.Registerer. Metrics are exposed at /metrics in Prometheus format.
package metric
