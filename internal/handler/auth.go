package handler

import (
	"errors"
	"net/http"

	"github.com/overseerhq/overseer/internal/service"
)

// AuthHandler serves the session endpoints: login and logout.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Admin loginAdmin `json:"admin"`
	Token string     `json:"token"`
}

// loginAdmin is the operator summary returned on login. The password
// hash never appears here.
type loginAdmin struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Login authenticates an operator and returns a session token. Every
// failure mode — unknown email, deactivated account, wrong password —
// produces the same 401 so accounts cannot be enumerated.
// POST /api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	op, token, err := h.authSvc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "Authentication error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Admin: loginAdmin{
			ID:    op.ID,
			Email: op.Email,
			Name:  op.Name,
			Role:  op.Role,
		},
		Token: token,
	})
}

// Logout ends the caller's session by clearing its delegated credential.
// Logging out an already-ended session succeeds the same way.
// POST /api/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if principal := getPrincipal(r); principal != nil {
		h.authSvc.Logout(principal.SessionID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Logged out successfully",
	})
}
