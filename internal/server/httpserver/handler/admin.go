package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/LuKks/protobee/internal/infra/buildinfo"
	"github.com/LuKks/protobee/internal/telemetry/logger"
)

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		LogLevel: logger.GetLevel(),
		Build:    buildinfo.Get(),
	}
	if h.engine != nil {
		resp.Version = h.engine.Version()
		resp.Length = h.engine.Length()
	}
	if h.server != nil {
		resp.Connections = h.server.Connections()
		resp.Instances = h.server.Instances()
		resp.Streams = h.server.Streams()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "PB-ARG-4000", "invalid request body")
		return
	}
	if !logger.ValidLevel(req.Level) {
		h.writeError(w, r, http.StatusBadRequest, "PB-ARG-4001", "unknown log level: "+req.Level)
		return
	}

	logger.SetLevel(req.Level)
	h.logger.Info("log level changed", "level", strings.ToLower(req.Level))
	h.writeJSON(w, r, http.StatusOK, map[string]string{"level": logger.GetLevel()})
}

func (h *Handler) handleGC(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "PB-SYS-5030", "engine not available")
		return
	}
	n, err := h.engine.GC(r.Context())
	if err != nil {
		h.logger.Error("value log gc failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "PB-SYS-5000", "value log gc failed")
		return
	}
	h.writeJSON(w, r, http.StatusOK, GCResponse{Rewrites: n})
}
