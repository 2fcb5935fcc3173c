package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/LuKks/protobee/internal/server/httpserver/handler"
	"github.com/LuKks/protobee/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Server and Engine back the probes and operator endpoints.
	Server handler.Server
	Engine handler.Engine

	// Metrics is exposed on /metrics. Nil uses the global registry.
	Metrics *metric.Registry

	Logger *slog.Logger

	// AllowList restricts /metrics and the operator endpoints to these
	// IPs or CIDR blocks. Empty means no restriction.
	AllowList []string
}

// NewRouter builds the operational HTTP handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = metric.Global()
	}

	h := handler.New(cfg.Server, cfg.Engine, logger)
	base := []Middleware{RequestID(), Recover(logger), AccessLog(logger)}
	restricted := append(append([]Middleware{}, base...), NetworkACL(cfg.AllowList, logger))

	mux := http.NewServeMux()

	probes := Chain(h, base...)
	mux.Handle("GET /healthz", probes)
	mux.Handle("GET /readyz", probes)

	mux.Handle("GET /metrics", Chain(metrics.Handler(), restricted...))

	admin := Chain(h, restricted...)
	mux.Handle("GET /status", admin)
	mux.Handle("PUT /log/level", admin)
	mux.Handle("POST /gc", admin)

	return mux
}
