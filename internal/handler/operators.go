package handler

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/model"
	"github.com/overseerhq/overseer/internal/service"
)

// OperatorHandler manages the control plane's own operator accounts.
// Every route it serves is super_admin only.
type OperatorHandler struct {
	store *config.Store
	audit *service.AuditRecorder
}

// NewOperatorHandler creates a new OperatorHandler.
func NewOperatorHandler(store *config.Store, audit *service.AuditRecorder) *OperatorHandler {
	return &OperatorHandler{store: store, audit: audit}
}

// ListOperators returns all operator accounts.
// GET /api/v1/operators
func (h *OperatorHandler) ListOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := h.store.ListOperators(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list operators")
		return
	}

	resources := make([]map[string]interface{}, 0, len(operators))
	for i := range operators {
		resources = append(resources, operatorToMap(&operators[i]))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operators": resources,
	})
}

// createOperatorRequest is the expected payload for CreateOperator.
type createOperatorRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// CreateOperator creates a new operator account. The password is hashed
// with bcrypt before it touches the store.
// POST /api/v1/operators
func (h *OperatorHandler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req createOperatorRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleAdmin
	}
	if role != model.RoleAdmin && role != model.RoleSuperAdmin {
		writeError(w, http.StatusBadRequest, "Role must be admin or super_admin")
		return
	}

	if _, err := h.store.GetOperatorByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "Operator with this email already exists")
		return
	} else if !errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check for existing operator")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), service.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	op := &model.Operator{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         role,
		IsActive:     true,
	}
	createErr := h.store.CreateOperator(r.Context(), op)

	principal := getPrincipal(r)
	h.audit.Record(r.Context(), model.ActionCreateOperator, principal.OperatorID,
		service.MetaFromRequest(r),
		map[string]interface{}{"email": op.Email, "role": op.Role, "outcome": auditOutcome(createErr)},
		"")

	if createErr != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create operator")
		return
	}
	writeJSON(w, http.StatusCreated, operatorToMap(op))
}

// operatorToMap serializes an operator without its password hash.
func operatorToMap(op *model.Operator) map[string]interface{} {
	m := map[string]interface{}{
		"id":         op.ID,
		"email":      op.Email,
		"name":       op.Name,
		"role":       op.Role,
		"is_active":  op.IsActive,
		"created_at": op.CreatedAt,
		"updated_at": op.UpdatedAt,
	}
	if op.LastLoginAt != nil {
		m["last_login_at"] = op.LastLoginAt
	}
	return m
}
