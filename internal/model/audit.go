package model

import "time"

// Audit action names for the privileged operations exposed by the API.
const (
	ActionViewUsersList   = "VIEW_USERS_LIST"
	ActionViewUserDetails = "VIEW_USER_DETAILS"
	ActionVerifyDevice    = "VERIFY_DEVICE"
	ActionViewDashboard   = "VIEW_DASHBOARD"
	ActionCreateOperator  = "CREATE_OPERATOR"
)

// AuditRecord is an append-only record of a privileged action taken by
// an operator. Records are never mutated or deleted; the ip_address and
// user_agent fields are snapshots taken at the time of the call.
type AuditRecord struct {
	ID         int64          `json:"id" db:"id"`
	Action     string         `json:"action" db:"action"`
	OperatorID int64          `json:"operator_id" db:"operator_id"`
	TargetID   string         `json:"target_id,omitempty" db:"target_id"`
	Details    map[string]any `json:"details,omitempty" db:"-"`
	IPAddress  string         `json:"ip_address" db:"ip_address"`
	UserAgent  string         `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
