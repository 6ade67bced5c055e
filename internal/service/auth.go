package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/delegation"
	"github.com/overseerhq/overseer/internal/model"
)

var (
	// ErrInvalidCredentials is returned for every login failure: unknown
	// email, inactive operator, or wrong password. The three cases are
	// deliberately indistinguishable to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a session token fails signature or
	// expiry verification.
	ErrInvalidToken = errors.New("invalid token")
)

// BcryptCost is the work factor used for operator password hashes.
const BcryptCost = 12

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = time.Hour

// Principal is the verified identity carried by a session token.
type Principal struct {
	OperatorID int64
	Email      string
	Role       string
	SessionID  string
	ExpiresAt  time.Time
}

// AuthService authenticates operators, issues and verifies session
// tokens, and maintains the delegated credential used to call the
// downstream service on the operator's behalf.
type AuthService struct {
	store       *config.Store
	delegations *delegation.Store
	jwtSecret   []byte
	tokenTTL    time.Duration
}

// NewAuthService creates a new AuthService. A zero tokenTTL falls back
// to DefaultTokenTTL.
func NewAuthService(store *config.Store, delegations *delegation.Store, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		store:       store,
		delegations: delegations,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
	}
}

// TokenTTL returns the configured session token lifetime.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Authenticate verifies an email/password pair and, on success, records
// the login time, issues a session token, and seeds the delegation store
// so the new session can immediately call the downstream service.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.Operator, string, error) {
	op, err := s.store.GetOperatorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("look up operator: %w", err)
	}

	if !op.IsActive {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	// Update last login timestamp (fire and forget)
	go s.store.UpdateOperatorLastLogin(context.Background(), op.ID)
	now := time.Now().UTC()
	op.LastLoginAt = &now

	token, principal, err := s.IssueSessionToken(op)
	if err != nil {
		return nil, "", err
	}

	s.delegations.Set(delegation.Credential{
		SessionID: principal.SessionID,
		Token:     token,
		ExpiresAt: principal.ExpiresAt,
	})

	return op, token, nil
}

// IssueSessionToken creates a signed session token for the operator and
// returns it with the principal it encodes. Every token carries a fresh
// session ID and the delegate marker.
func (s *AuthService) IssueSessionToken(op *model.Operator) (string, *Principal, error) {
	now := time.Now()
	sessionID := uuid.NewString()
	expiresAt := now.Add(s.tokenTTL)

	claims := sessionClaims{
		OperatorID: op.ID,
		Email:      op.Email,
		Role:       op.Role,
		IsDelegate: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "overseer",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	return signed, &Principal{
		OperatorID: op.ID,
		Email:      op.Email,
		Role:       op.Role,
		SessionID:  sessionID,
		ExpiresAt:  expiresAt,
	}, nil
}

// ValidateSessionToken verifies a session token's signature and expiry
// and returns the principal it encodes. It does not consult the
// operator table; callers that need liveness checks reload the operator.
func (s *AuthService) ValidateSessionToken(tokenStr string) (*Principal, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Principal{
		OperatorID: claims.OperatorID,
		Email:      claims.Email,
		Role:       claims.Role,
		SessionID:  claims.ID,
		ExpiresAt:  expiresAt,
	}, nil
}

// VerifySession authorizes a bearer token presented on a request. It
// verifies the token, reloads the operator to confirm it still exists
// and is active, and returns the session's delegated credential. When
// the delegation store has no entry for the session (for example after
// a restart), the presented token itself is re-recorded as the
// credential, so a valid session never loses its downstream access.
func (s *AuthService) VerifySession(ctx context.Context, tokenStr string) (*Principal, delegation.Credential, error) {
	principal, err := s.ValidateSessionToken(tokenStr)
	if err != nil {
		return nil, delegation.Credential{}, err
	}

	op, err := s.store.GetOperator(ctx, principal.OperatorID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, delegation.Credential{}, ErrInvalidToken
		}
		return nil, delegation.Credential{}, fmt.Errorf("look up operator: %w", err)
	}
	if !op.IsActive {
		return nil, delegation.Credential{}, ErrInvalidToken
	}

	cred, ok := s.delegations.Get(principal.SessionID)
	if !ok {
		cred = delegation.Credential{
			SessionID: principal.SessionID,
			Token:     tokenStr,
			ExpiresAt: principal.ExpiresAt,
		}
		s.delegations.Set(cred)
	}

	return principal, cred, nil
}

// Logout clears the session's delegated credential. It never fails:
// clearing an unknown or already-cleared session is a no-op.
func (s *AuthService) Logout(sessionID string) {
	s.delegations.Clear(sessionID)
}

// Delegations exposes the delegation store to the middleware and the
// downstream client.
func (s *AuthService) Delegations() *delegation.Store {
	return s.delegations
}

// EnsureDefaultOperator idempotently creates the seed super_admin
// operator. If an operator with the seed email already exists (in any
// state), nothing is created. An empty email disables seeding.
func (s *AuthService) EnsureDefaultOperator(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}

	_, err := s.store.GetOperatorByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("check for default operator: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return fmt.Errorf("hash default operator password: %w", err)
	}

	op := &model.Operator{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "System Administrator",
		Role:         model.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := s.store.CreateOperator(ctx, op); err != nil {
		return fmt.Errorf("create default operator: %w", err)
	}
	return nil
}

type sessionClaims struct {
	OperatorID int64  `json:"operator_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsDelegate bool   `json:"is_delegate"`
	jwt.RegisteredClaims
}
