package domain

import "time"

// AuditType classifies audit log entries.
type AuditType string

const (
	AuditRequest   AuditType = "request"
	AuditOperation AuditType = "operation"
	AuditError     AuditType = "error"
)

// AuditLogEntry captures one completed pipeline pass or one failure.
// Entries are append-only; retention is handled outside the gateway.
type AuditLogEntry struct {
	ID            string    `json:"id"`
	Type          AuditType `json:"type"`
	Time          time.Time `json:"time"`
	User          string    `json:"user,omitempty"`
	RemoteAddress string    `json:"remoteAddress,omitempty"`
	Authorization string    `json:"authorization,omitempty"`
	Method        string    `json:"method,omitempty"`
	Endpoint      string    `json:"endpoint,omitempty"`
	Payload       string    `json:"payload,omitempty"`
	Info          string    `json:"info,omitempty"`
}
