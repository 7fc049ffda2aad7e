package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-gateway/internal/apperror"
	"github.com/smallbiznis/smallbiznis-gateway/internal/config"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
	"github.com/smallbiznis/smallbiznis-gateway/internal/token"
)

const auditWriteTimeout = 5 * time.Second

// TokenService owns the token lifecycle: bootstrap, generate, invalidate,
// list, and the audit log read side.
type TokenService struct {
	store  repository.TokenStore
	codec  *token.Codec
	cfg    config.Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewTokenService wires the lifecycle manager.
func NewTokenService(store repository.TokenStore, codec *token.Codec, cfg config.Config, logger *zap.Logger) *TokenService {
	return &TokenService{
		store:  store,
		codec:  codec,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("internal/service"),
		now:    time.Now,
	}
}

func (s *TokenService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

// BootstrapAdmin issues the short-lived admin token used for initial token
// management. Keyed by the admin user, so re-running replaces rather than
// duplicates.
func (s *TokenService) BootstrapAdmin(ctx context.Context) (domain.Token, error) {
	ctx, span := s.startSpan(ctx, "TokenService.BootstrapAdmin")
	defer span.End()

	raw, err := s.codec.Sign(token.Claims{ID: domain.AdminUserID, Scope: domain.AdminScope()}, s.cfg.BootstrapTTL)
	if err != nil {
		span.RecordError(err)
		return domain.Token{}, err
	}

	record := domain.Token{
		UserID:      domain.AdminUserID,
		TokenString: raw,
		Scope:       domain.AdminScope(),
		Validity:    s.cfg.BootstrapTTL.String(),
		Status:      domain.TokenEnabled,
		Authority:   domain.AdminUserID,
		IssuedAt:    s.now(),
	}

	stored, err := s.store.UpsertToken(ctx, record, domain.AdminUserID)
	if err != nil {
		span.RecordError(err)
		return domain.Token{}, err
	}

	s.recordOperation(domain.AdminUserID, "bootstrap admin token issued")
	return stored, nil
}

// Generate signs and persists a token for the target user, replacing any
// previous token for that user. The issuing principal is recorded as the
// token's authority.
func (s *TokenService) Generate(ctx context.Context, authority, userID string, scope []string, validity string) (domain.Token, error) {
	ctx, span := s.startSpan(ctx, "TokenService.Generate")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if err := validateClaims(userID, scope); err != nil {
		return domain.Token{}, err
	}

	ttl, err := token.ParseValidity(validity, s.cfg.TokenTTL)
	if err != nil {
		return domain.Token{}, apperror.Wrap(apperror.KindInvalidPayload, "parse validity", err)
	}
	if validity == "" {
		validity = ttl.String()
	}

	raw, err := s.codec.Sign(token.Claims{ID: userID, Scope: scope}, ttl)
	if err != nil {
		span.RecordError(err)
		return domain.Token{}, err
	}

	record := domain.Token{
		UserID:      userID,
		TokenString: raw,
		Scope:       scope,
		Validity:    validity,
		Status:      domain.TokenEnabled,
		Authority:   authority,
		IssuedAt:    s.now(),
	}

	stored, err := s.store.UpsertToken(ctx, record, userID)
	if err != nil {
		span.RecordError(err)
		return domain.Token{}, err
	}

	s.recordOperation(authority, fmt.Sprintf("token generated for %s", userID))
	return stored, nil
}

// Invalidate removes every token record for the user.
func (s *TokenService) Invalidate(ctx context.Context, authority, userID string) (int64, error) {
	ctx, span := s.startSpan(ctx, "TokenService.Invalidate")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperror.New(apperror.KindInvalidPayload, "user is required")
	}

	removed, err := s.store.RemoveTokens(ctx, repository.TokenFilter{User: userID})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if removed == 0 {
		return 0, apperror.New(apperror.KindNothingToRemove, fmt.Sprintf("no tokens for %s", userID))
	}

	s.recordOperation(authority, fmt.Sprintf("tokens invalidated for %s", userID))
	return removed, nil
}

// List returns issued tokens, newest first. Records come back sanitized:
// the store exposes no storage-internal identifiers.
func (s *TokenService) List(ctx context.Context, filter repository.TokenFilter) ([]domain.Token, error) {
	ctx, span := s.startSpan(ctx, "TokenService.List")
	defer span.End()

	tokens, err := s.store.ListTokens(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return tokens, nil
}

// ListLogs returns audit log entries sorted by time descending.
func (s *TokenService) ListLogs(ctx context.Context, filter repository.LogFilter) ([]domain.AuditLogEntry, error) {
	ctx, span := s.startSpan(ctx, "TokenService.ListLogs")
	defer span.End()

	entries, err := s.store.ListAuditLogs(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

// recordOperation appends an operation audit entry off the request path.
// Audit failures are logged and swallowed so they never block a caller.
func (s *TokenService) recordOperation(user, info string) {
	entry := domain.AuditLogEntry{
		ID:   uuid.NewString(),
		Type: domain.AuditOperation,
		Time: s.now(),
		User: user,
		Info: info,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := s.store.AppendAuditLog(ctx, entry); err != nil {
			s.logger.Warn("operation audit write failed", zap.String("user", user), zap.Error(err))
		}
	}()
}

func validateClaims(userID string, scope []string) error {
	if userID == "" {
		return apperror.New(apperror.KindInvalidPayload, "user is required")
	}
	if len(scope) == 0 {
		return apperror.New(apperror.KindInvalidPayload, "scope must not be empty")
	}
	for _, s := range scope {
		if strings.TrimSpace(s) == "" {
			return apperror.New(apperror.KindInvalidPayload, "scope entries must not be blank")
		}
	}
	return nil
}
