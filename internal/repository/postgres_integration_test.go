//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL must be set for integration tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE tokens, audit_logs`)
	require.NoError(t, err)

	return pool
}

func TestUpsertTokenReplacesByUser(t *testing.T) {
	ctx := context.Background()
	store := repository.NewPostgresTokenStore(setupDB(t))

	record := domain.Token{
		UserID:      "alice",
		TokenString: "first.token.value",
		Scope:       []string{"General.Access"},
		Validity:    "24h",
		Status:      domain.TokenEnabled,
		Authority:   "admin",
		IssuedAt:    time.Now().UTC(),
	}

	_, err := store.UpsertToken(ctx, record, "alice")
	require.NoError(t, err)

	record.TokenString = "second.token.value"
	record.Scope = []string{"General.Access", "General.Logs"}
	stored, err := store.UpsertToken(ctx, record, "alice")
	require.NoError(t, err)
	require.Equal(t, "second.token.value", stored.TokenString)

	tokens, err := store.ListTokens(ctx, repository.TokenFilter{User: "alice"})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, []string{"General.Access", "General.Logs"}, tokens[0].Scope)
}

func TestFindEnabledTokenMatchesExactScope(t *testing.T) {
	ctx := context.Background()
	store := repository.NewPostgresTokenStore(setupDB(t))

	record := domain.Token{
		UserID:      "bob",
		TokenString: "bob.token.value",
		Scope:       []string{"General.Access"},
		Validity:    "24h",
		Status:      domain.TokenEnabled,
		Authority:   "admin",
		IssuedAt:    time.Now().UTC(),
	}
	_, err := store.UpsertToken(ctx, record, "bob")
	require.NoError(t, err)

	stored, found, err := store.FindEnabledToken(ctx, repository.TokenFilter{
		User: "bob", Scope: []string{"General.Access"}, Status: domain.TokenEnabled,
	})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, record.TokenString, stored.TokenString)

	_, found, err = store.FindEnabledToken(ctx, repository.TokenFilter{
		User: "bob", Scope: []string{"General.Logs"}, Status: domain.TokenEnabled,
	})
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.FindEnabledToken(ctx, repository.TokenFilter{
		User: "nobody", Scope: []string{"General.Access"}, Status: domain.TokenEnabled,
	})
	require.NoError(t, err)
	require.False(t, found)
}

func TestRemoveTokens(t *testing.T) {
	ctx := context.Background()
	store := repository.NewPostgresTokenStore(setupDB(t))

	removed, err := store.RemoveTokens(ctx, repository.TokenFilter{User: "carol"})
	require.NoError(t, err)
	require.Zero(t, removed)

	_, err = store.UpsertToken(ctx, domain.Token{
		UserID:      "carol",
		TokenString: "carol.token.value",
		Scope:       []string{"General.Access"},
		Validity:    "24h",
		Status:      domain.TokenEnabled,
		Authority:   "admin",
		IssuedAt:    time.Now().UTC(),
	}, "carol")
	require.NoError(t, err)

	removed, err = store.RemoveTokens(ctx, repository.TokenFilter{User: "carol"})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestAuditLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := repository.NewPostgresTokenStore(setupDB(t))

	older := domain.AuditLogEntry{
		ID:            uuid.NewString(),
		Type:          domain.AuditRequest,
		Time:          time.Now().UTC().Add(-time.Minute),
		User:          "alice",
		RemoteAddress: "203.0.113.9",
		Method:        "GET",
		Endpoint:      "/tokens",
	}
	newer := domain.AuditLogEntry{
		ID:   uuid.NewString(),
		Type: domain.AuditError,
		Time: time.Now().UTC(),
		User: "alice",
		Info: "token revoked or replaced",
	}
	require.NoError(t, store.AppendAuditLog(ctx, older))
	require.NoError(t, store.AppendAuditLog(ctx, newer))

	entries, err := store.ListAuditLogs(ctx, repository.LogFilter{User: "alice"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, newer.ID, entries[0].ID)

	errorsOnly, err := store.ListAuditLogs(ctx, repository.LogFilter{Type: domain.AuditError})
	require.NoError(t, err)
	require.Len(t, errorsOnly, 1)
	require.Equal(t, newer.ID, errorsOnly[0].ID)
}
