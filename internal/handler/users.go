package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/overseerhq/overseer/internal/downstream"
	"github.com/overseerhq/overseer/internal/model"
	"github.com/overseerhq/overseer/internal/service"
)

// UserHandler proxies user and dashboard reads to the downstream service
// on the operator's behalf. Responses pass through verbatim; the handler
// adds authorization, auditing, and error shielding, never reshaping the
// downstream payload.
type UserHandler struct {
	client *downstream.Client
	audit  *service.AuditRecorder
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(client *downstream.Client, audit *service.AuditRecorder, logger *slog.Logger) *UserHandler {
	return &UserHandler{client: client, audit: audit, logger: logger}
}

// ListUsers returns a page of downstream users.
// GET /api/v1/users?page&limit&search
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := clampInt(queryInt(r, "limit", 20), 1, 100)
	search := queryString(r, "search")

	raw, err := h.client.ListUsers(r.Context(), page, limit, search)

	principal := getPrincipal(r)
	h.audit.Record(r.Context(), model.ActionViewUsersList, principal.OperatorID,
		service.MetaFromRequest(r),
		map[string]interface{}{"page": page, "limit": limit, "search": search, "outcome": auditOutcome(err)},
		"")

	if err != nil {
		writeDownstreamError(h.logger, w, r, "list users", err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// GetUser returns a single downstream user.
// GET /api/v1/users/{userId}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	raw, err := h.client.GetUser(r.Context(), userID)

	principal := getPrincipal(r)
	h.audit.Record(r.Context(), model.ActionViewUserDetails, principal.OperatorID,
		service.MetaFromRequest(r),
		map[string]interface{}{"outcome": auditOutcome(err)},
		userID)

	if err != nil {
		writeDownstreamError(h.logger, w, r, "get user", err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// verifyDeviceRequest is the expected payload for VerifyDevice.
type verifyDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// VerifyDevice asks the downstream service to mark one of the user's
// devices as verified. The audit record is written once the downstream
// has answered, carrying the outcome either way.
// POST /api/v1/users/{userId}/verify-device
func (h *UserHandler) VerifyDevice(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req verifyDeviceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	raw, err := h.client.VerifyDevice(r.Context(), userID, req.DeviceID)

	principal := getPrincipal(r)
	h.audit.Record(r.Context(), model.ActionVerifyDevice, principal.OperatorID,
		service.MetaFromRequest(r),
		map[string]interface{}{"device_id": req.DeviceID, "outcome": auditOutcome(err)},
		userID)

	if err != nil {
		writeDownstreamError(h.logger, w, r, "verify device", err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// DashboardStats returns the downstream dashboard aggregates.
// GET /api/v1/dashboard/stats
func (h *UserHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	raw, err := h.client.DashboardStats(r.Context())

	principal := getPrincipal(r)
	h.audit.Record(r.Context(), model.ActionViewDashboard, principal.OperatorID,
		service.MetaFromRequest(r),
		map[string]interface{}{"outcome": auditOutcome(err)},
		"")

	if err != nil {
		writeDownstreamError(h.logger, w, r, "dashboard stats", err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// writeRaw writes an already-encoded JSON payload through unchanged.
func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}
