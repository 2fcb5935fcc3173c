// Package httpserver serves the operational HTTP endpoint of protobee-server.
//
//   - /healthz, /readyz: liveness and readiness probes
//   - /metrics: Prometheus exposition
//   - /status, /log/level, /gc: operator endpoints, optionally restricted
//     to an IP allowlist
//
// Every request gets an X-Request-ID and is logged at debug level.
package httpserver
