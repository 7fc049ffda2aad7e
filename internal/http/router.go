package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/smallbiznis-gateway/internal/config"
	"github.com/smallbiznis/smallbiznis-gateway/internal/domain"
	"github.com/smallbiznis/smallbiznis-gateway/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/smallbiznis-gateway/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware. Every token and log route sits
// behind the authentication gate; scopes beyond General.Access are declared
// per route.
func NewRouter(cfg config.Config, tokenHandler *handler.TokenHandler, auth *httpmiddleware.Auth, rateLimiter *httpmiddleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(httpmiddleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", tokenHandler.Health)

	protected := r.Group("/", auth.Gate())
	{
		protected.POST("/tokens/:user", auth.RequireScope(domain.ScopeTokensGenerate), tokenHandler.Generate)
		protected.DELETE("/tokens/:user", auth.RequireScope(domain.ScopeTokensGenerate), tokenHandler.Invalidate)
		protected.GET("/tokens", auth.RequireScope(domain.ScopeTokensGenerate, domain.ScopeTokensList), tokenHandler.List)

		// The log listing is exempt from request auditing so reading the
		// log does not append to it.
		protected.GET("/logs", auth.RequireScopeQuiet(domain.ScopeGeneralLogs), tokenHandler.Logs)
	}

	return r
}
