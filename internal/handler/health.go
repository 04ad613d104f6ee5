package handler

import (
	"net/http"
)

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Session: h.sessions.State().String()}
	if h.realtime != nil {
		connected := h.realtime.Connected()
		resp.Realtime = &connected
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status   string `json:"status"`
	Session  string `json:"session"`
	Realtime *bool  `json:"realtime_connected,omitempty"`
}
