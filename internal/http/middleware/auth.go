package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/smallbiznis-gateway/internal/apperror"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	"github.com/smallbiznis/smallbiznis-gateway/internal/permission"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
	"github.com/smallbiznis/smallbiznis-gateway/internal/token"
)

const (
	claimsKey     = "authClaims"
	rawPayloadKey = "rawPayload"
)

// Credentials must be exactly three base64url segments behind a Bearer
// prefix; anything else is rejected before the store is consulted.
var bearerPattern = regexp.MustCompile(`^Bearer ([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)$`)

// Auth runs the per-request authentication pipeline. Stages execute in
// strict order and the first failure short-circuits straight to the
// responder; later stages leave no partial effects.
type Auth struct {
	Codec   *token.Codec
	Store   repository.TokenStore
	Respond *Responder
}

// NewAuth wires the pipeline middleware.
func NewAuth(codec *token.Codec, store repository.TokenStore, respond *Responder) *Auth {
	return &Auth{Codec: codec, Store: store, Respond: respond}
}

// Gate authenticates the request: header shape, signature, liveness
// against the store, structural validation, and the General.Access scope
// every route demands. Verified claims are stashed on the context for the
// per-route scope checks.
func (m *Auth) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		match := bearerPattern.FindStringSubmatch(header)
		if match == nil {
			m.Respond.Error(c, apperror.New(apperror.KindInvalidPayload, "authorization header is not a bearer token"))
			return
		}
		raw := match[1]

		claims, err := m.Codec.Verify(raw)
		if err != nil {
			m.Respond.Error(c, err)
			return
		}

		stored, found, err := m.Store.FindEnabledToken(c.Request.Context(), repository.TokenFilter{
			User:   claims.ID,
			Scope:  claims.Scope,
			Status: domain.TokenEnabled,
		})
		if err != nil {
			m.Respond.Error(c, err)
			return
		}
		// A signed token whose stored counterpart is gone or differs has
		// been revoked or replaced; treat it the same as a bad signature.
		if !found || stored.TokenString != raw {
			m.Respond.Error(c, apperror.New(apperror.KindJSONWebToken, "token revoked or replaced"))
			return
		}

		if err := validateStructure(c, claims); err != nil {
			m.Respond.Error(c, err)
			return
		}
		c.Set(claimsKey, claims)

		if !permission.Check([]string{domain.ScopeGeneralAccess}, claims.Scope) {
			m.Respond.Error(c, apperror.New(apperror.KindTokenPermission, "missing "+domain.ScopeGeneralAccess))
			return
		}

		c.Next()
	}
}

// RequireScope authorizes the route's scope set and records a request
// audit entry before dispatching.
func (m *Auth) RequireScope(scopes ...string) gin.HandlerFunc {
	return m.requireScope(true, scopes)
}

// RequireScopeQuiet is RequireScope without the audit write, for routes
// that would otherwise feed back into the audit log they serve.
func (m *Auth) RequireScopeQuiet(scopes ...string) gin.HandlerFunc {
	return m.requireScope(false, scopes)
}

func (m *Auth) requireScope(audit bool, scopes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			m.Respond.Error(c, apperror.New(apperror.KindDefault, "pipeline claims missing"))
			return
		}

		if !permission.Check(scopes, claims.Scope) {
			m.Respond.Error(c, apperror.New(apperror.KindTokenPermission, "missing "+strings.Join(scopes, ", ")))
			return
		}

		if audit {
			m.Respond.Request(c)
		}
		c.Next()
	}
}

// validateStructure enforces the token's structural invariants and, when a
// body is present, that it is a well-formed JSON object. The body is
// re-buffered for downstream binding.
func validateStructure(c *gin.Context, claims token.Claims) error {
	if strings.TrimSpace(claims.ID) == "" {
		return apperror.New(apperror.KindInvalidPayload, "token claims missing id")
	}
	if len(claims.Scope) == 0 {
		return apperror.New(apperror.KindInvalidPayload, "token claims missing scope")
	}

	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return apperror.Wrap(apperror.KindInvalidPayload, "read body", err)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	c.Set(rawPayloadKey, string(trimmed))

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return apperror.Wrap(apperror.KindInvalidPayload, "body is not a well-formed object", err)
	}
	return nil
}

// GetClaims returns the verified token claims stashed by Gate.
func GetClaims(c *gin.Context) (token.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return token.Claims{}, false
	}
	claims, ok := value.(token.Claims)
	return claims, ok
}

// GetRawPayload returns the request body captured during validation.
func GetRawPayload(c *gin.Context) string {
	value, ok := c.Get(rawPayloadKey)
	if !ok {
		return ""
	}
	payload, _ := value.(string)
	return payload
}
