// Package handler serves the operational HTTP endpoints of protobee-server:
// health and readiness probes, a status summary, runtime log level changes
// and on-demand value log GC.
package handler
