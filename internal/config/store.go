package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/overseerhq/overseer/internal/model"
)

// Store manages Overseer's persisted state backed by SQLite. It holds
// operator accounts and the append-only audit log.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "overseer.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Operator CRUD
// ---------------------------------------------------------------------------

// CreateOperator inserts a new operator account. The email is stored
// lowercased. The ID, CreatedAt, and UpdatedAt fields are populated after
// a successful insert.
func (s *Store) CreateOperator(ctx context.Context, op *model.Operator) error {
	now := time.Now().UTC()
	op.Email = strings.ToLower(op.Email)
	op.CreatedAt = now
	op.UpdatedAt = now

	const q = `INSERT INTO operators
		(email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES
		(:email, :password_hash, :name, :role, :is_active, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, op)
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get operator id: %w", err)
	}
	op.ID = id
	return nil
}

// GetOperatorByEmail returns an operator by email address. The lookup is
// case-insensitive.
func (s *Store) GetOperatorByEmail(ctx context.Context, email string) (*model.Operator, error) {
	var op model.Operator
	err := s.db.GetContext(ctx, &op,
		"SELECT * FROM operators WHERE email = ?", strings.ToLower(email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get operator by email: %w", err)
	}
	return &op, nil
}

// GetOperator returns an operator by ID.
func (s *Store) GetOperator(ctx context.Context, id int64) (*model.Operator, error) {
	var op model.Operator
	if err := s.db.GetContext(ctx, &op, "SELECT * FROM operators WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return &op, nil
}

// ListOperators returns all operator accounts.
func (s *Store) ListOperators(ctx context.Context) ([]model.Operator, error) {
	var ops []model.Operator
	if err := s.db.SelectContext(ctx, &ops, "SELECT * FROM operators ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	return ops, nil
}

// UpdateOperatorLastLogin sets the last_login_at timestamp for an operator.
func (s *Store) UpdateOperatorLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE operators SET last_login_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("update operator last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update operator last login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// auditRow is a flat struct that maps 1:1 to the audit_logs table columns.
// We use it for sqlx scanning because model.AuditRecord carries details as
// a structured map rather than a JSON text column.
type auditRow struct {
	ID          int64     `db:"id"`
	Action      string    `db:"action"`
	OperatorID  int64     `db:"operator_id"`
	TargetID    string    `db:"target_id"`
	DetailsJSON string    `db:"details_json"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	CreatedAt   time.Time `db:"created_at"`
}

func auditRowFromModel(rec *model.AuditRecord) (auditRow, error) {
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return auditRow{}, fmt.Errorf("marshal audit details: %w", err)
	}
	return auditRow{
		ID:          rec.ID,
		Action:      rec.Action,
		OperatorID:  rec.OperatorID,
		TargetID:    rec.TargetID,
		DetailsJSON: string(detailsJSON),
		IPAddress:   rec.IPAddress,
		UserAgent:   rec.UserAgent,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func (r auditRow) toModel() (model.AuditRecord, error) {
	var details map[string]any
	if r.DetailsJSON != "" {
		if err := json.Unmarshal([]byte(r.DetailsJSON), &details); err != nil {
			return model.AuditRecord{}, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	if len(details) == 0 {
		details = nil
	}
	return model.AuditRecord{
		ID:         r.ID,
		Action:     r.Action,
		OperatorID: r.OperatorID,
		TargetID:   r.TargetID,
		Details:    details,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		CreatedAt:  r.CreatedAt,
	}, nil
}

// InsertAuditRecord appends an audit record. The ID and CreatedAt fields
// are populated after a successful insert. Records are never updated or
// deleted.
func (s *Store) InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	rec.CreatedAt = time.Now().UTC()

	row, err := auditRowFromModel(rec)
	if err != nil {
		return err
	}

	const q = `INSERT INTO audit_logs
		(action, operator_id, target_id, details_json, ip_address, user_agent, created_at)
		VALUES
		(:action, :operator_id, :target_id, :details_json, :ip_address, :user_agent, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get audit record id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListAuditRecords returns one page of an operator's audit trail, newest
// first, along with the total record count for that operator.
func (s *Store) ListAuditRecords(ctx context.Context, operatorID int64, offset, limit int) ([]model.AuditRecord, int64, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM audit_logs WHERE operator_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		operatorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}

	var total int64
	err = s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM audit_logs WHERE operator_id = ?", operatorID)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	records := make([]model.AuditRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// CountAuditRecordsByAction returns how many records exist for the given
// action name.
func (s *Store) CountAuditRecordsByAction(ctx context.Context, action string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM audit_logs WHERE action = ?", action)
	if err != nil {
		return 0, fmt.Errorf("count audit records by action: %w", err)
	}
	return count, nil
}
