package service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/overseerhq/overseer/internal/model"
)

// AuditStore is the interface the recorder needs from the persistence
// layer. *config.Store satisfies it; tests substitute failing stores.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error
	ListAuditRecords(ctx context.Context, operatorID int64, offset, limit int) ([]model.AuditRecord, int64, error)
}

// RequestMeta is the caller-side snapshot captured when a privileged
// action runs. It is recorded as-is and never re-derived.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// MetaFromRequest captures the caller's network address and declared
// client identifier from an inbound request.
func MetaFromRequest(r *http.Request) RequestMeta {
	ua := r.UserAgent()
	if ua == "" {
		ua = "Unknown"
	}
	return RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: ua,
	}
}

// AuditRecorder durably records privileged actions. Writes are
// best-effort: a failure is logged and swallowed so it can never fail or
// roll back the action it describes.
type AuditRecorder struct {
	store  AuditStore
	logger *slog.Logger
}

// NewAuditRecorder creates a new AuditRecorder.
func NewAuditRecorder(store AuditStore, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{store: store, logger: logger}
}

// Record appends one audit record for a privileged action. It is called
// after the primary operation's result is known and never influences it;
// persistence failures are logged for operator visibility and dropped.
func (a *AuditRecorder) Record(ctx context.Context, action string, operatorID int64, meta RequestMeta, details map[string]any, targetID string) {
	rec := &model.AuditRecord{
		Action:     action,
		OperatorID: operatorID,
		TargetID:   targetID,
		Details:    details,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}

	if err := a.store.InsertAuditRecord(ctx, rec); err != nil {
		a.logger.Error("failed to save audit record",
			"action", action,
			"operator_id", operatorID,
			"error", err,
		)
	}
}

// ListForOperator returns one page of an operator's audit trail, newest
// first. Page numbers start at 1; limit is clamped to [1, 100].
func (a *AuditRecorder) ListForOperator(ctx context.Context, operatorID int64, page, limit int) (*model.AuditLogList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit
	records, total, err := a.store.ListAuditRecords(ctx, operatorID, offset, limit)
	if err != nil {
		return nil, err
	}

	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}

	return &model.AuditLogList{
		Logs: records,
		Pagination: model.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}
