package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-gateway/internal/apperror"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
)

const auditWriteTimeout = 5 * time.Second

// Responder translates internal errors into the stable boundary envelope
// and records one error audit entry per failure. It is shared by the
// pipeline middleware and the handlers so every failure path converges on
// the same table.
type Responder struct {
	Store  repository.TokenStore
	Logger *zap.Logger
}

// NewResponder creates the boundary error responder.
func NewResponder(store repository.TokenStore, logger *zap.Logger) *Responder {
	return &Responder{Store: store, Logger: logger}
}

// Error writes the client-visible (code, message) envelope for err and
// appends an error audit entry. The audit attempt never alters the
// response: failures are logged and swallowed.
func (r *Responder) Error(c *gin.Context, err error) {
	resp := apperror.TranslateError(err)

	if resp.Status >= http.StatusInternalServerError {
		r.Logger.Error("request failed", zap.String("endpoint", c.Request.URL.Path), zap.Error(err))
	} else {
		r.Logger.Debug("request rejected", zap.String("endpoint", c.Request.URL.Path), zap.Error(err))
	}

	c.AbortWithStatusJSON(resp.Status, resp)
	r.append(buildAuditEntry(c, domain.AuditError, err.Error()))
}

// Request records a request audit entry for a pipeline pass that reached
// dispatch.
func (r *Responder) Request(c *gin.Context) {
	r.append(buildAuditEntry(c, domain.AuditRequest, ""))
}

func (r *Responder) append(entry domain.AuditLogEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := r.Store.AppendAuditLog(ctx, entry); err != nil {
			r.Logger.Warn("audit write failed",
				zap.String("type", string(entry.Type)),
				zap.String("user", entry.User),
				zap.Error(err),
			)
		}
	}()
}

func buildAuditEntry(c *gin.Context, typ domain.AuditType, info string) domain.AuditLogEntry {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}

	var user string
	if claims, ok := GetClaims(c); ok {
		user = claims.ID
	}

	return domain.AuditLogEntry{
		ID:            uuid.NewString(),
		Type:          typ,
		Time:          time.Now(),
		User:          user,
		RemoteAddress: c.ClientIP(),
		Authorization: c.GetHeader("Authorization"),
		Method:        c.Request.Method,
		Endpoint:      endpoint,
		Payload:       GetRawPayload(c),
		Info:          info,
	}
}
