package handler

import (
	"net/http"

	"github.com/overseerhq/overseer/internal/service"
)

// AuditHandler serves the caller's own audit trail.
type AuditHandler struct {
	audit *service.AuditRecorder
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit *service.AuditRecorder) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ListAuditLogs returns the authenticated operator's audit records,
// most recent first.
// GET /api/v1/audit-logs?page&limit
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	principal := getPrincipal(r)

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	list, err := h.audit.ListForOperator(r.Context(), principal.OperatorID, page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, list)
}
