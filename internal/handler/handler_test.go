package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/delegation"
	"github.com/overseerhq/overseer/internal/downstream"
	"github.com/overseerhq/overseer/internal/model"
	"github.com/overseerhq/overseer/internal/server/middleware"
	"github.com/overseerhq/overseer/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests: an in-memory
// store, the full middleware chain, and a stub downstream server whose
// behavior each test can override.
type testEnv struct {
	store       *config.Store
	authSvc     *service.AuthService
	delegations *delegation.Store
	audit       *service.AuditRecorder
	router      chi.Router
	downstream  func(w http.ResponseWriter, r *http.Request)
}

// newTestEnv creates a fresh test environment. Routes are mounted with the
// real Authenticate middleware so session handling is exercised end to end.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	e := &testEnv{store: store}
	e.downstream = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}

	ds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.downstream(w, r)
	}))
	t.Cleanup(ds.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.delegations = delegation.NewStore()
	e.authSvc = service.NewAuthService(store, e.delegations, testJWTSecret, time.Hour)
	e.audit = service.NewAuditRecorder(store, logger)
	client := downstream.NewClient(ds.URL, 5*time.Second, e.delegations, logger)

	authHandler := NewAuthHandler(e.authSvc)
	userHandler := NewUserHandler(client, e.audit, logger)
	operatorHandler := NewOperatorHandler(store, e.audit)
	auditHandler := NewAuditHandler(e.audit)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(e.authSvc))
			r.Post("/logout", authHandler.Logout)
			r.Get("/users", userHandler.ListUsers)
			r.Get("/users/{userId}", userHandler.GetUser)
			r.Post("/users/{userId}/verify-device", userHandler.VerifyDevice)
			r.Get("/dashboard/stats", userHandler.DashboardStats)
			r.Get("/audit-logs", auditHandler.ListAuditLogs)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSuperAdmin())
				r.Get("/operators", operatorHandler.ListOperators)
				r.Post("/operators", operatorHandler.CreateOperator)
			})
		})
	})
	e.router = r

	return e
}

// seedOperator creates an operator account and returns it.
func (e *testEnv) seedOperator(t *testing.T, email, role string, active bool) *model.Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	op := &model.Operator{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Test Operator",
		Role:         role,
		IsActive:     active,
	}
	if err := e.store.CreateOperator(context.Background(), op); err != nil {
		t.Fatalf("seedOperator: %v", err)
	}
	return op
}

// login authenticates the given operator and returns its session token.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, "POST", "/api/v1/login", toJSON(t, map[string]string{
		"email":    email,
		"password": testPassword,
	}), "")
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Token string `json:"token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// auditRecords returns all audit records for the operator, newest first.
func (e *testEnv) auditRecords(t *testing.T, operatorID int64) []model.AuditRecord {
	t.Helper()
	records, _, err := e.store.ListAuditRecords(context.Background(), operatorID, 0, 100)
	if err != nil {
		t.Fatalf("list audit records: %v", err)
	}
	return records
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// withPrincipal attaches a principal the way the Authenticate middleware
// does, for tests that call handlers directly.
func withPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, middleware.AuthPrincipalKey, p)
}

// brokenAuditStore fails every write, for exercising best-effort auditing.
type brokenAuditStore struct{}

func (brokenAuditStore) InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	return errBrokenAuditStore
}

func (brokenAuditStore) ListAuditRecords(ctx context.Context, operatorID int64, offset, limit int) ([]model.AuditRecord, int64, error) {
	return nil, 0, errBrokenAuditStore
}

var errBrokenAuditStore = errors.New("audit store unavailable")
