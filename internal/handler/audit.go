package handler

import (
	"net/http"

	"github.com/keydesk/keydesk/internal/audit"
)

// AuditHandler exposes the audit trail for inspection.
type AuditHandler struct {
	recorder *audit.Recorder
}

func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// List returns recent audit entries, newest first.
// GET /api/v1/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	entries, total, err := h.recorder.List(r.Context(), page.Limit, page.Offset())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writePage(w, entries, len(entries), page, total)
}
