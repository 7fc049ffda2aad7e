package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/smallbiznis-gateway/internal/apperror"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	"github.com/smallbiznis/smallbiznis-gateway/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
	"github.com/smallbiznis/smallbiznis-gateway/internal/service"
)

// TokenHandler exposes the token lifecycle over HTTP.
type TokenHandler struct {
	Tokens  *service.TokenService
	Respond *middleware.Responder
}

// NewTokenHandler creates the handler set.
func NewTokenHandler(tokens *service.TokenService, respond *middleware.Responder) *TokenHandler {
	return &TokenHandler{Tokens: tokens, Respond: respond}
}

type generateRequest struct {
	Scope    []string `json:"scope"`
	Validity string   `json:"validity"`
}

// Generate issues a token for the path user, replacing any previous one.
func (h *TokenHandler) Generate(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		h.Respond.Error(c, apperror.New(apperror.KindDefault, "pipeline claims missing"))
		return
	}

	var req generateRequest
	if raw := middleware.GetRawPayload(c); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			h.Respond.Error(c, apperror.Wrap(apperror.KindSyntax, "decode request", err))
			return
		}
	}

	issued, err := h.Tokens.Generate(c.Request.Context(), claims.ID, c.Param("user"), req.Scope, req.Validity)
	if err != nil {
		h.Respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// Invalidate removes every token held by the path user.
func (h *TokenHandler) Invalidate(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		h.Respond.Error(c, apperror.New(apperror.KindDefault, "pipeline claims missing"))
		return
	}

	removed, err := h.Tokens.Invalidate(c.Request.Context(), claims.ID, c.Param("user"))
	if err != nil {
		h.Respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removedCount": removed})
}

// List returns issued tokens, optionally filtered by user.
func (h *TokenHandler) List(c *gin.Context) {
	tokens, err := h.Tokens.List(c.Request.Context(), repository.TokenFilter{User: c.Query("user")})
	if err != nil {
		h.Respond.Error(c, err)
		return
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	c.JSON(http.StatusOK, tokens)
}

// Logs returns audit log entries, newest first.
func (h *TokenHandler) Logs(c *gin.Context) {
	filter := repository.LogFilter{
		User: c.Query("user"),
		Type: domain.AuditType(c.Query("type")),
	}
	entries, err := h.Tokens.ListLogs(c.Request.Context(), filter)
	if err != nil {
		h.Respond.Error(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditLogEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// Health is the unauthenticated liveness probe.
func (h *TokenHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
