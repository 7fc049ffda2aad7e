// Package repository defines the persistence contract consumed by the
// gateway core and its Postgres implementation.
package repository

import (
	"context"

	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
)

// TokenFilter narrows token queries. Zero-value fields are ignored.
type TokenFilter struct {
	User   string
	Scope  []string
	Status domain.TokenStatus
}

// LogFilter narrows audit log queries. Zero-value fields are ignored.
type LogFilter struct {
	User string
	Type domain.AuditType
}

// TokenStore is the persistence abstraction for issued tokens and audit log
// entries. All exclusivity guarantees (one enabled token per user) are
// delegated to the store's atomic upsert; the core takes no in-process locks.
type TokenStore interface {
	// UpsertToken persists a token record. A non-empty matchUser performs an
	// atomic find-and-replace keyed by that user, so concurrent generates for
	// the same user converge on the last writer; an empty matchUser inserts.
	UpsertToken(ctx context.Context, record domain.Token, matchUser string) (domain.Token, error)

	// FindEnabledToken returns the record matching the filter, if any.
	FindEnabledToken(ctx context.Context, filter TokenFilter) (domain.Token, bool, error)

	// RemoveTokens deletes matching records and returns how many went away.
	RemoveTokens(ctx context.Context, filter TokenFilter) (int64, error)

	// ListTokens returns matching records, newest first.
	ListTokens(ctx context.Context, filter TokenFilter) ([]domain.Token, error)

	// AppendAuditLog persists one audit entry. Callers on the request path
	// treat failures as fire-and-forget: log and move on, never propagate.
	AppendAuditLog(ctx context.Context, entry domain.AuditLogEntry) error

	// ListAuditLogs returns matching entries sorted by time descending.
	ListAuditLogs(ctx context.Context, filter LogFilter) ([]domain.AuditLogEntry, error)
}
