package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/smallbiznis-gateway/internal/apperror"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
)

// Compile-time interface assertion.
var _ TokenStore = (*PostgresTokenStore)(nil)

// PostgresTokenStore implements TokenStore on a pgx connection pool.
type PostgresTokenStore struct {
	db *pgxpool.Pool
}

func NewPostgresTokenStore(pool *pgxpool.Pool) *PostgresTokenStore {
	return &PostgresTokenStore{db: pool}
}

const upsertTokenSQL = `INSERT INTO tokens (user_id, token, scope, validity, status, authority, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
	token = EXCLUDED.token,
	scope = EXCLUDED.scope,
	validity = EXCLUDED.validity,
	status = EXCLUDED.status,
	authority = EXCLUDED.authority,
	issued_at = EXCLUDED.issued_at
RETURNING user_id, token, scope, validity, status, authority, issued_at`

const insertTokenSQL = `INSERT INTO tokens (user_id, token, scope, validity, status, authority, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING user_id, token, scope, validity, status, authority, issued_at`

func (s *PostgresTokenStore) UpsertToken(ctx context.Context, record domain.Token, matchUser string) (domain.Token, error) {
	query := insertTokenSQL
	if matchUser != "" {
		// The unique index on user_id makes the replace atomic; concurrent
		// generates for the same user converge on the last writer.
		query = upsertTokenSQL
		record.UserID = matchUser
	}

	row := s.db.QueryRow(ctx, query,
		record.UserID,
		record.TokenString,
		record.Scope,
		record.Validity,
		record.Status,
		record.Authority,
		record.IssuedAt,
	)

	stored, err := scanToken(row)
	if err != nil {
		return domain.Token{}, apperror.Wrap(apperror.KindStore, "upsert token", err)
	}
	return stored, nil
}

const findEnabledTokenSQL = `SELECT user_id, token, scope, validity, status, authority, issued_at
FROM tokens
WHERE user_id = $1 AND status = $2 AND scope = $3`

func (s *PostgresTokenStore) FindEnabledToken(ctx context.Context, filter TokenFilter) (domain.Token, bool, error) {
	status := filter.Status
	if status == "" {
		status = domain.TokenEnabled
	}

	row := s.db.QueryRow(ctx, findEnabledTokenSQL, filter.User, status, filter.Scope)
	stored, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Token{}, false, nil
	}
	if err != nil {
		return domain.Token{}, false, apperror.Wrap(apperror.KindStore, "find token", err)
	}
	return stored, true, nil
}

func (s *PostgresTokenStore) RemoveTokens(ctx context.Context, filter TokenFilter) (int64, error) {
	query := `DELETE FROM tokens`
	args := []any{}
	if filter.User != "" {
		query += ` WHERE user_id = $1`
		args = append(args, filter.User)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindStore, "remove tokens", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresTokenStore) ListTokens(ctx context.Context, filter TokenFilter) ([]domain.Token, error) {
	query := `SELECT user_id, token, scope, validity, status, authority, issued_at FROM tokens`
	args := []any{}
	if filter.User != "" {
		query += ` WHERE user_id = $1`
		args = append(args, filter.User)
	}
	query += ` ORDER BY issued_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStore, "list tokens", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		stored, err := scanToken(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindStore, "scan token", err)
		}
		tokens = append(tokens, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.KindStore, "list tokens", err)
	}
	return tokens, nil
}

const appendAuditLogSQL = `INSERT INTO audit_logs (id, type, time, user_id, remote_address, auth_header, method, endpoint, payload, info)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *PostgresTokenStore) AppendAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	_, err := s.db.Exec(ctx, appendAuditLogSQL,
		entry.ID,
		entry.Type,
		entry.Time,
		entry.User,
		entry.RemoteAddress,
		entry.Authorization,
		entry.Method,
		entry.Endpoint,
		entry.Payload,
		entry.Info,
	)
	if err != nil {
		return apperror.Wrap(apperror.KindStore, "append audit log", err)
	}
	return nil
}

func (s *PostgresTokenStore) ListAuditLogs(ctx context.Context, filter LogFilter) ([]domain.AuditLogEntry, error) {
	query := `SELECT id, type, time, user_id, remote_address, auth_header, method, endpoint, payload, info FROM audit_logs`
	args := []any{}
	var where []string
	if filter.User != "" {
		args = append(args, filter.User)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY time DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStore, "list audit logs", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Type,
			&entry.Time,
			&entry.User,
			&entry.RemoteAddress,
			&entry.Authorization,
			&entry.Method,
			&entry.Endpoint,
			&entry.Payload,
			&entry.Info,
		); err != nil {
			return nil, apperror.Wrap(apperror.KindStore, "scan audit log", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.KindStore, "list audit logs", err)
	}
	return entries, nil
}

func scanToken(row pgx.Row) (domain.Token, error) {
	var stored domain.Token
	err := row.Scan(
		&stored.UserID,
		&stored.TokenString,
		&stored.Scope,
		&stored.Validity,
		&stored.Status,
		&stored.Authority,
		&stored.IssuedAt,
	)
	return stored, err
}
