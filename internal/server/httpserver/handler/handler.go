package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Server reports the live state of the RPC server.
type Server interface {
	Running() bool
	Connections() int
	Instances() int
	Streams() int
}

// Engine reports the state of the store.
type Engine interface {
	Version() uint64
	Length() uint64
	GC(ctx context.Context) (int, error)
}

// Handler routes operational requests.
type Handler struct {
	server Server
	engine Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler.
func New(server Server, engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		server: server,
		engine: engine,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /readyz", h.handleReady)

	h.mux.HandleFunc("GET /status", h.handleStatus)
	h.mux.HandleFunc("PUT /log/level", h.handleSetLogLevel)
	h.mux.HandleFunc("POST /gc", h.handleGC)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID(r), data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(requestID(r), code, message))
}

// requestID returns the id the middleware put on the response.
func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}
