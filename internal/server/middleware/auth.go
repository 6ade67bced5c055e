package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/overseerhq/overseer/internal/delegation"
	"github.com/overseerhq/overseer/internal/model"
	"github.com/overseerhq/overseer/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Authenticate returns an HTTP middleware that validates the request's
// Bearer session token. On success the operator's Principal and the
// session's delegated credential are attached to the request context, so
// downstream calls made while serving this request act on the operator's
// behalf. On failure a 401 JSON error response is returned.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			principal, cred, err := authSvc.VerifySession(r.Context(), token)
			if err != nil {
				// Token problems are the caller's fault; anything else
				// (store outage, for example) is ours.
				if errors.Is(err, service.ErrInvalidToken) {
					writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				} else {
					writeAuthError(w, http.StatusInternalServerError, "Authentication error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			ctx = delegation.NewContext(ctx, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperAdmin returns an HTTP middleware that restricts a route to
// super_admin operators. It must be used after Authenticate in the
// middleware chain.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || principal.Role != model.RoleSuperAdmin {
				writeAuthError(w, http.StatusForbidden, "Super admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
		},
	})
}
