package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionJoin                = "JOIN"
	AuditActionLogin               = "LOGIN"
	AuditActionLogout              = "LOGOUT"
	AuditActionRefresh             = "REFRESH"
	AuditActionSessionRevoke       = "SESSION_REVOKE"
	AuditActionSessionExport       = "SESSION_EXPORT"
	AuditActionPrincipalDeactivate = "PRINCIPAL_DEACTIVATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	PrincipalID *string   `db:"principal_id" json:"principal_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	Resource    string    `db:"resource" json:"resource"`
	ResourceID  *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues   []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AuditLogFilter captures filtering criteria for listing audit entries.
type AuditLogFilter struct {
	PrincipalID string
	Action      string
	Page        int
	PageSize    int
}
