package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pix-gateway/internal/adapters/nuvende"
	"pix-gateway/internal/adapters/repo"
	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/cache"
	"pix-gateway/internal/infra/config"
	"pix-gateway/internal/infra/db"
	httpinfra "pix-gateway/internal/infra/http"
	"pix-gateway/internal/infra/idempotency"
	applog "pix-gateway/internal/infra/log"
	"pix-gateway/internal/infra/metrics"
	"pix-gateway/internal/usecase/pix"
	"pix-gateway/internal/usecase/token"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.Metrics.Addr)
	}

	creds := cfg.Credentials()
	if err := creds.Validate(); err != nil {
		// Still serve: /pix/create reports the missing variables per request.
		logger.Warn().Err(err).Msg("api: provider credentials incomplete")
	}

	client := nuvende.NewClient(nuvende.Config{
		BaseURL: cfg.Provider.APIURL,
		Timeout: cfg.Provider.Timeout,
	}, logger.With().Str("component", "nuvende").Logger())

	cacheOpts := []token.Option{
		token.WithLogger(logger.With().Str("component", "token").Logger()),
		token.WithLoginTimeout(cfg.Provider.Timeout),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("api: redis unavailable")
		}
		cacheOpts = append(cacheOpts, token.WithStore(cache.NewRedisTokenStore(rdb, cfg.TokenCacheKey)))
		logger.Info().Str("key", cfg.TokenCacheKey).Msg("api: sharing provider token through redis")
	}
	tokens := token.NewCache(creds, client, cacheOpts...)

	var events domain.BusinessMetricRepo = domain.NopBusinessMetrics{}
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: no database connection")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("api: business_metrics schema")
		}
		events = pg
	}

	charges := pix.NewChargeService(creds, tokens, client,
		logger.With().Str("component", "pix_charge").Logger(),
		pix.WithChargeEvents(events))
	diag := pix.NewDiagnostics(creds, tokens, client,
		logger.With().Str("component", "pix_diagnostics").Logger(), events)

	serverOpts := []httpinfra.Option{
		httpinfra.WithLogger(logger.With().Str("component", "http").Logger()),
		httpinfra.WithAdminToken(cfg.AdminToken),
		httpinfra.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.IdempotencyDBPath != "" {
		store, err := idempotency.New(cfg.IdempotencyDBPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.IdempotencyDBPath).Msg("api: idempotency store")
		}
		defer store.Close()
		serverOpts = append(serverOpts, httpinfra.WithIdempotency(store))
	}
	if cfg.AdminToken == "" {
		logger.Warn().Msg("api: ADMIN_TOKEN is empty, diagnostic routes are public")
	}

	server := httpinfra.NewServer(creds, charges, diag, serverOpts...)
	if err := run(ctx, logger, server, cfg); err != nil {
		logger.Error().Err(err).Msg("api: server stopped")
	}
}

func run(ctx context.Context, logger zerolog.Logger, server *httpinfra.Server, cfg config.AppConfig) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port), httpinfra.Timeouts{
			Read:  cfg.Server.ReadTimeout,
			Write: cfg.Server.WriteTimeout,
			Idle:  cfg.Server.IdleTimeout,
		})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("api: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
