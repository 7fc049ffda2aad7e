package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-gateway/internal/config"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	httptransport "github.com/smallbiznis/smallbiznis-gateway/internal/http"
	"github.com/smallbiznis/smallbiznis-gateway/internal/http/handler"
	"github.com/smallbiznis/smallbiznis-gateway/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
	"github.com/smallbiznis/smallbiznis-gateway/internal/service"
	"github.com/smallbiznis/smallbiznis-gateway/internal/token"
)

type gatewayFixture struct {
	router *gin.Engine
	store  *memoryStore
	tokens *service.TokenService
	codec  *token.Codec
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		ServiceName:        "gateway-test",
		TokenTTL:           24 * time.Hour,
		BootstrapTTL:       10 * time.Minute,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}

	store := newMemoryStore()
	codec := token.NewCodec([]byte("test-secret"))
	logger := zap.NewNop()
	tokens := service.NewTokenService(store, codec, cfg, logger)
	respond := middleware.NewResponder(store, logger)
	auth := middleware.NewAuth(codec, store, respond)
	tokenHandler := handler.NewTokenHandler(tokens, respond)

	return &gatewayFixture{
		router: httptransport.NewRouter(cfg, tokenHandler, auth, nil),
		store:  store,
		tokens: tokens,
		codec:  codec,
	}
}

func (f *gatewayFixture) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestTokenLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	admin, err := f.tokens.BootstrapAdmin(ctx)
	require.NoError(t, err)

	// Issue a token for alice using the bootstrap credential.
	w := f.do(t, http.MethodPost, "/tokens/alice", admin.TokenString,
		`{"scope":["General.Access"],"validity":"1 hour"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var issued domain.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.Equal(t, "alice", issued.UserID)
	require.NotEmpty(t, issued.TokenString)
	require.Equal(t, admin.UserID, issued.Authority)

	claims, err := f.codec.Verify(issued.TokenString)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.ID)
	require.Equal(t, []string{"General.Access"}, claims.Scope)

	// The listing includes alice's record.
	w = f.do(t, http.MethodGet, "/tokens", admin.TokenString, "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed []domain.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	users := make([]string, 0, len(listed))
	for _, record := range listed {
		users = append(users, record.UserID)
	}
	require.Contains(t, users, "alice")
	require.Contains(t, users, domain.AdminUserID)

	// Alice's scope covers access but not token management.
	w = f.do(t, http.MethodGet, "/tokens", issued.TokenString, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, 1002, envelopeCode(t, w))

	// Invalidate, then confirm the removed credential no longer works.
	w = f.do(t, http.MethodDelete, "/tokens/alice", admin.TokenString, "")
	require.Equal(t, http.StatusOK, w.Code)
	var removed struct {
		RemovedCount int64 `json:"removedCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
	require.Equal(t, int64(1), removed.RemovedCount)

	w = f.do(t, http.MethodGet, "/tokens", issued.TokenString, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, 1004, envelopeCode(t, w))

	w = f.do(t, http.MethodDelete, "/tokens/alice", admin.TokenString, "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, 1007, envelopeCode(t, w))
}

func TestGenerateReplacementKeepsOneToken(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	admin, err := f.tokens.BootstrapAdmin(ctx)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/tokens/bob", admin.TokenString, `{"scope":["General.Access"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/tokens/bob", admin.TokenString, `{"scope":["General.Access","General.Logs"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/tokens?user=bob", admin.TokenString, "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed []domain.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, []string{"General.Access", "General.Logs"}, listed[0].Scope)
}

func TestGenerateRejectsEmptyScope(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	admin, err := f.tokens.BootstrapAdmin(ctx)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/tokens/carol", admin.TokenString, `{"scope":[]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 1005, envelopeCode(t, w))
}

func TestLogsEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	admin, err := f.tokens.BootstrapAdmin(ctx)
	require.NoError(t, err)

	// Generate traffic that produces request and error entries.
	w := f.do(t, http.MethodPost, "/tokens/alice", admin.TokenString, `{"scope":["General.Access"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = f.do(t, http.MethodGet, "/tokens", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Eventually(t, func() bool {
		entries, err := f.store.ListAuditLogs(ctx, repository.LogFilter{})
		return err == nil && len(entries) >= 2
	}, time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodGet, "/logs", admin.TokenString, "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []domain.AuditLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		require.False(t, entries[i-1].Time.Before(entries[i].Time), "entries must be sorted by time descending")
	}
}

func TestHealthzNeedsNoToken(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func envelopeCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var envelope struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Code
}

// memoryStore is an in-memory TokenStore for router tests.
type memoryStore struct {
	mu     sync.Mutex
	tokens map[string]domain.Token
	logs   []domain.AuditLogEntry
}

var _ repository.TokenStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: make(map[string]domain.Token)}
}

func (m *memoryStore) UpsertToken(ctx context.Context, record domain.Token, matchUser string) (domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if matchUser != "" {
		record.UserID = matchUser
	}
	m.tokens[record.UserID] = record
	return record, nil
}

func (m *memoryStore) FindEnabledToken(ctx context.Context, filter repository.TokenFilter) (domain.Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.tokens[filter.User]
	if !ok || record.Status != domain.TokenEnabled || !slices.Equal(record.Scope, filter.Scope) {
		return domain.Token{}, false, nil
	}
	return record, true, nil
}

func (m *memoryStore) RemoveTokens(ctx context.Context, filter repository.TokenFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[filter.User]; !ok {
		return 0, nil
	}
	delete(m.tokens, filter.User)
	return 1, nil
}

func (m *memoryStore) ListTokens(ctx context.Context, filter repository.TokenFilter) ([]domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []domain.Token
	for _, record := range m.tokens {
		if filter.User != "" && record.UserID != filter.User {
			continue
		}
		tokens = append(tokens, record)
	}
	slices.SortFunc(tokens, func(a, b domain.Token) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
	return tokens, nil
}

func (m *memoryStore) AppendAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memoryStore) ListAuditLogs(ctx context.Context, filter repository.LogFilter) ([]domain.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []domain.AuditLogEntry
	for _, entry := range m.logs {
		if filter.User != "" && entry.User != filter.User {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b domain.AuditLogEntry) int {
		return b.Time.Compare(a.Time)
	})
	return entries, nil
}
