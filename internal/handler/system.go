package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/keydesk/keydesk/internal/store"
)

// SystemHandler serves the liveness and readiness probes.
type SystemHandler struct {
	store   *store.Store
	version string
}

func NewSystemHandler(st *store.Store, version string) *SystemHandler {
	return &SystemHandler{store: st, version: version}
}

// Healthz is the liveness probe: the process is up.
// GET /healthz
func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Readyz is the readiness probe: the store answers a ping.
// GET /readyz
func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "store ping failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
