package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/delegation"
	"github.com/overseerhq/overseer/internal/model"
)

const testSecret = "test-secret-key-for-jwt"

func newTestAuth(t *testing.T) (*AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	auth := NewAuthService(store, delegation.NewStore(), testSecret, time.Hour)
	return auth, store
}

// seedOperator creates an operator with a real (low-cost) bcrypt hash.
func seedOperator(t *testing.T, store *config.Store, email, password, role string, active bool) *model.Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	op := &model.Operator{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Test Operator",
		Role:         role,
		IsActive:     active,
	}
	if err := store.CreateOperator(context.Background(), op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	return op
}

func TestAuthenticateSuccess(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	seedOperator(t, store, "admin@example.com", "admin123", model.RoleSuperAdmin, true)

	op, token, err := auth.Authenticate(ctx, "admin@example.com", "admin123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty session token")
	}
	if op.Email != "admin@example.com" {
		t.Errorf("email = %q, want %q", op.Email, "admin@example.com")
	}
	if op.LastLoginAt == nil {
		t.Error("expected LastLoginAt to be set after login")
	}

	// The issued token must verify immediately.
	principal, err := auth.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken: %v", err)
	}
	if principal.OperatorID != op.ID {
		t.Errorf("OperatorID = %d, want %d", principal.OperatorID, op.ID)
	}
	if principal.Role != model.RoleSuperAdmin {
		t.Errorf("Role = %q, want %q", principal.Role, model.RoleSuperAdmin)
	}
	if principal.SessionID == "" {
		t.Error("expected non-empty session ID")
	}

	// Login seeds the delegation store for the new session.
	cred, ok := auth.Delegations().Get(principal.SessionID)
	if !ok {
		t.Fatal("expected delegated credential after login")
	}
	if cred.Token != token {
		t.Error("delegated credential should carry the session token")
	}
}

func TestAuthenticateUniformFailure(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	seedOperator(t, store, "active@example.com", "rightpass", model.RoleAdmin, true)
	seedOperator(t, store, "inactive@example.com", "rightpass", model.RoleAdmin, false)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "rightpass"},
		{"inactive operator", "inactive@example.com", "rightpass"},
		{"wrong password", "active@example.com", "wrongpass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := auth.Authenticate(ctx, tt.email, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestSessionTokenCarriesDelegateMarker(t *testing.T) {
	auth, store := newTestAuth(t)
	op := seedOperator(t, store, "mark@example.com", "pw", model.RoleAdmin, true)

	token, _, err := auth.IssueSessionToken(op)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}

	claims := &sessionClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("ParseWithClaims: %v", err)
	}
	if !claims.IsDelegate {
		t.Error("expected is_delegate claim to be true")
	}
	if claims.ID == "" {
		t.Error("expected jti claim to be set")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	// Sign a token that expired an hour ago with the same secret.
	claims := sessionClaims{
		OperatorID: 1,
		Email:      "old@example.com",
		Role:       model.RoleAdmin,
		IsDelegate: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "stale-session",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			Issuer:    "overseer",
		},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := auth.ValidateSessionToken(stale); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken for expired token", err)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.ValidateSessionToken("garbage.token.here"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	auth, store := newTestAuth(t)
	op := seedOperator(t, store, "secret@example.com", "pw", model.RoleAdmin, true)

	other := NewAuthService(store, delegation.NewStore(), "a-different-secret", time.Hour)
	token, _, err := other.IssueSessionToken(op)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}

	if _, err := auth.ValidateSessionToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken for foreign signature", err)
	}
}

func TestEnsureDefaultOperatorIdempotent(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	if err := auth.EnsureDefaultOperator(ctx, "admin@example.com", "admin123"); err != nil {
		t.Fatalf("EnsureDefaultOperator: %v", err)
	}

	op, err := store.GetOperatorByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetOperatorByEmail: %v", err)
	}
	if op.Role != model.RoleSuperAdmin {
		t.Errorf("role = %q, want %q", op.Role, model.RoleSuperAdmin)
	}
	if !op.IsActive {
		t.Error("default operator should be active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte("admin123")); err != nil {
		t.Error("stored hash should match the seed password")
	}

	// Second boot with the same seed creates zero additional operators.
	if err := auth.EnsureDefaultOperator(ctx, "admin@example.com", "admin123"); err != nil {
		t.Fatalf("EnsureDefaultOperator (second): %v", err)
	}
	ops, err := store.ListOperators(ctx)
	if err != nil {
		t.Fatalf("ListOperators: %v", err)
	}
	if len(ops) != 1 {
		t.Errorf("got %d operators, want exactly 1", len(ops))
	}
}

func TestEnsureDefaultOperatorDisabled(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	if err := auth.EnsureDefaultOperator(ctx, "", "ignored"); err != nil {
		t.Fatalf("EnsureDefaultOperator: %v", err)
	}
	ops, err := store.ListOperators(ctx)
	if err != nil {
		t.Fatalf("ListOperators: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("got %d operators, want 0 when seeding is disabled", len(ops))
	}
}

func TestLogoutClearsDelegation(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	seedOperator(t, store, "bye@example.com", "pw", model.RoleAdmin, true)

	_, token, err := auth.Authenticate(ctx, "bye@example.com", "pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	principal, err := auth.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken: %v", err)
	}
	if !auth.Delegations().IsValid(principal.SessionID) {
		t.Fatal("expected valid delegation after login")
	}

	auth.Logout(principal.SessionID)
	if auth.Delegations().IsValid(principal.SessionID) {
		t.Error("expected delegation cleared after logout")
	}

	// A second logout is a harmless no-op.
	auth.Logout(principal.SessionID)
}
