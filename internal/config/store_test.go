package config

import (
	"context"
	"testing"
	"time"

	"github.com/overseerhq/overseer/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOperatorCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &model.Operator{
		Email:        "Admin@Example.com",
		PasswordHash: "$2a$12$testhash",
		Name:         "System Administrator",
		Role:         model.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if op.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}
	if op.Email != "admin@example.com" {
		t.Errorf("email = %q, want lowercased %q", op.Email, "admin@example.com")
	}

	// Lookup is case-insensitive.
	got, err := s.GetOperatorByEmail(ctx, "ADMIN@example.COM")
	if err != nil {
		t.Fatalf("GetOperatorByEmail: %v", err)
	}
	if got.ID != op.ID {
		t.Errorf("got ID %d, want %d", got.ID, op.ID)
	}
	if got.Role != model.RoleSuperAdmin {
		t.Errorf("got role %q, want %q", got.Role, model.RoleSuperAdmin)
	}

	got2, err := s.GetOperator(ctx, op.ID)
	if err != nil {
		t.Fatalf("GetOperator: %v", err)
	}
	if got2.Email != "admin@example.com" {
		t.Errorf("got email %q, want %q", got2.Email, "admin@example.com")
	}

	list, err := s.ListOperators(ctx)
	if err != nil {
		t.Fatalf("ListOperators: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d operators, want 1", len(list))
	}
}

func TestOperatorNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOperatorByEmail(ctx, "nobody@example.com"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetOperator(ctx, 999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateOperatorLastLogin(ctx, 999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOperatorDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &model.Operator{
		Email:        "dup@example.com",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	dup := &model.Operator{
		Email:        "DUP@example.com",
		PasswordHash: "hash2",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, dup); err == nil {
		t.Error("expected unique constraint error for duplicate email")
	}
}

func TestUpdateOperatorLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &model.Operator{
		Email:        "login@example.com",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if op.LastLoginAt != nil {
		t.Error("expected nil LastLoginAt before first login")
	}

	if err := s.UpdateOperatorLastLogin(ctx, op.ID); err != nil {
		t.Fatalf("UpdateOperatorLastLogin: %v", err)
	}

	got, err := s.GetOperator(ctx, op.ID)
	if err != nil {
		t.Fatalf("GetOperator: %v", err)
	}
	if got.LastLoginAt == nil {
		t.Fatal("expected LastLoginAt to be set")
	}
	if time.Since(*got.LastLoginAt) > time.Minute {
		t.Errorf("LastLoginAt = %v, want recent", got.LastLoginAt)
	}
}

func TestAuditRecordInsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &model.Operator{
		Email:        "auditor@example.com",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	for i := 0; i < 3; i++ {
		rec := &model.AuditRecord{
			Action:     model.ActionViewUsersList,
			OperatorID: op.ID,
			Details:    map[string]any{"page": float64(i + 1)},
			IPAddress:  "10.0.0.1",
			UserAgent:  "test-agent",
		}
		if err := s.InsertAuditRecord(ctx, rec); err != nil {
			t.Fatalf("InsertAuditRecord: %v", err)
		}
		if rec.ID == 0 {
			t.Fatal("expected non-zero audit record ID")
		}
	}

	records, total, err := s.ListAuditRecords(ctx, op.ID, 0, 2)
	if err != nil {
		t.Fatalf("ListAuditRecords: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Newest first: the last inserted record (page 3) comes back first.
	if records[0].Details["page"] != float64(3) {
		t.Errorf("first record page = %v, want 3", records[0].Details["page"])
	}
	if records[0].Action != model.ActionViewUsersList {
		t.Errorf("action = %q, want %q", records[0].Action, model.ActionViewUsersList)
	}
	if records[0].IPAddress != "10.0.0.1" {
		t.Errorf("ip_address = %q, want %q", records[0].IPAddress, "10.0.0.1")
	}

	// Second page.
	records2, _, err := s.ListAuditRecords(ctx, op.ID, 2, 2)
	if err != nil {
		t.Fatalf("ListAuditRecords page 2: %v", err)
	}
	if len(records2) != 1 {
		t.Errorf("got %d records on page 2, want 1", len(records2))
	}
}

func TestAuditRecordEmptyDetails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &model.Operator{
		Email:        "bare@example.com",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	rec := &model.AuditRecord{
		Action:     model.ActionViewDashboard,
		OperatorID: op.ID,
		IPAddress:  "10.0.0.2",
		UserAgent:  "Unknown",
	}
	if err := s.InsertAuditRecord(ctx, rec); err != nil {
		t.Fatalf("InsertAuditRecord: %v", err)
	}

	records, _, err := s.ListAuditRecords(ctx, op.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListAuditRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Details != nil {
		t.Errorf("details = %v, want nil for empty details", records[0].Details)
	}
}

func TestCountAuditRecordsByAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &model.Operator{
		Email:        "counter@example.com",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	for _, action := range []string{
		model.ActionVerifyDevice,
		model.ActionVerifyDevice,
		model.ActionViewDashboard,
	} {
		rec := &model.AuditRecord{
			Action:     action,
			OperatorID: op.ID,
			IPAddress:  "10.0.0.3",
			UserAgent:  "test",
		}
		if err := s.InsertAuditRecord(ctx, rec); err != nil {
			t.Fatalf("InsertAuditRecord: %v", err)
		}
	}

	n, err := s.CountAuditRecordsByAction(ctx, model.ActionVerifyDevice)
	if err != nil {
		t.Fatalf("CountAuditRecordsByAction: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
