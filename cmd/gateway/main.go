package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-gateway/internal/config"
	httptransport "github.com/smallbiznis/smallbiznis-gateway/internal/http"
	"github.com/smallbiznis/smallbiznis-gateway/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/smallbiznis-gateway/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-gateway/internal/repository"
	"github.com/smallbiznis/smallbiznis-gateway/internal/server"
	"github.com/smallbiznis/smallbiznis-gateway/internal/service"
	"github.com/smallbiznis/smallbiznis-gateway/internal/telemetry"
	"github.com/smallbiznis/smallbiznis-gateway/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newTokenStore,
			newCodec,
			newRateLimiter,
			newResponder,
			httpmiddleware.NewAuth,
			service.NewTokenService,
			handler.NewTokenHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrapAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTokenStore(pool *pgxpool.Pool) repository.TokenStore {
	return repository.NewPostgresTokenStore(pool)
}

func newCodec(cfg config.Config) *token.Codec {
	return token.NewCodec([]byte(cfg.SigningSecret))
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newResponder(store repository.TokenStore, logger *zap.Logger) *httpmiddleware.Responder {
	return httpmiddleware.NewResponder(store, logger)
}

func bootstrapAdmin(lc fx.Lifecycle, tokens *service.TokenService, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			issued, err := tokens.BootstrapAdmin(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap admin: %w", err)
			}
			// The operator reads the token from the startup log; it is the
			// only credential able to mint further tokens.
			logger.Info("bootstrap admin token issued",
				zap.String("token", issued.TokenString),
				zap.String("validity", issued.Validity),
			)
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
