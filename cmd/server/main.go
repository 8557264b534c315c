package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/orgcast/internal/api"
	"github.com/lalith-99/orgcast/internal/audit"
	"github.com/lalith-99/orgcast/internal/broadcast"
	"github.com/lalith-99/orgcast/internal/config"
	"github.com/lalith-99/orgcast/internal/db"
	"github.com/lalith-99/orgcast/internal/guard"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/push"
	"github.com/lalith-99/orgcast/internal/push/webpush"
	"github.com/lalith-99/orgcast/internal/ratelimit"
	"github.com/lalith-99/orgcast/internal/recipients"
	"github.com/lalith-99/orgcast/internal/repository"
	"github.com/lalith-99/orgcast/internal/repository/memory"
	"github.com/lalith-99/orgcast/internal/repository/postgres"
	"github.com/lalith-99/orgcast/internal/scope"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores bundles the four repositories one backend provides.
type stores struct {
	hierarchy  repository.HierarchyStore
	broadcasts repository.BroadcastRepository
	endpoints  repository.PushEndpointRepository
	audit      repository.AuditRepository
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observ.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st stores
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pg := postgres.New(database.Pool())
		st = stores{hierarchy: pg, broadcasts: pg, endpoints: pg, audit: pg}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		mem := memory.New()
		st = stores{hierarchy: mem, broadcasts: mem, endpoints: mem, audit: mem}
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	trail := audit.NewTrail(st.audit, logger, metrics, cfg.AuditQueueSize)
	guarded := guard.New(st.hierarchy, trail, metrics, logger)
	scopes := scope.NewResolver(guarded, logger)
	resolver := recipients.NewResolver(guarded, scopes, logger)

	var (
		deliverer broadcast.Deliverer
		publicKey = cfg.VAPIDPublicKey
	)
	if cfg.PushEnabled() {
		client, err := webpush.New(webpush.Config{
			PrivateKey: cfg.VAPIDPrivateKey,
			PublicKey:  cfg.VAPIDPublicKey,
			Subject:    cfg.VAPIDSubject,
		}, nil)
		if err != nil {
			return fmt.Errorf("create web push client: %w", err)
		}
		publicKey = client.PublicKey()
		deliverer = push.NewEngine(st.endpoints, client, push.Config{
			BatchSize:      cfg.PushBatchSize,
			TTL:            cfg.PushTTL,
			Freshness:      cfg.PushFreshness,
			AttemptTimeout: cfg.PushAttemptTimeout,
		}, trail, metrics, logger)
	} else {
		logger.Warn("VAPID keys not configured, push delivery disabled")
	}

	dispatcher := broadcast.NewDispatcher(st.broadcasts, deliverer, scopes, trail, metrics, logger)
	service := broadcast.NewService(resolver, dispatcher, st.broadcasts, logger)

	router := api.NewRouter(api.Deps{
		Hierarchy:      guarded,
		Endpoints:      st.endpoints,
		Audit:          st.audit,
		Scopes:         scopes,
		Recipients:     resolver,
		Broadcasts:     service,
		Limiter:        limiter,
		Metrics:        metrics,
		JWTSecret:      cfg.JWTSecret,
		JWTTTL:         cfg.JWTTTL,
		VAPIDPublicKey: publicKey,
		Logger:         logger,
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting orgcast",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.Bool("push_enabled", deliverer != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	// Pending pushes and audit writes outlive the requests that started them.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("push deliveries still running at shutdown", zap.Error(err))
	}
	if err := trail.Close(shutdownCtx); err != nil {
		logger.Warn("audit queue not drained", zap.Error(err))
	}
	return nil
}

// newLimiter prefers a shared Redis window and falls back to a
// per-process one when Redis is unset or unreachable.
func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, error) {
	local := ratelimit.NewMemory(cfg.BroadcastRatePerMinute)
	if cfg.RedisURL == "" {
		return local, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, rate limit falls back per request", zap.Error(err))
	}
	return ratelimit.NewFallback(ratelimit.NewRedis(client, cfg.BroadcastRatePerMinute), local, logger), nil
}
