package handler

import (
	"net/http"
	"time"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports ready once the RPC listener accepts connections.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.server == nil || !h.server.Running() {
		h.writeError(w, r, http.StatusServiceUnavailable, "PB-SYS-5030", "server not accepting connections")
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
