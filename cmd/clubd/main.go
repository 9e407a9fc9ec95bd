package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jimf8th/my-skool-club-sub000/pkg/api"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/auth"
	"github.com/jimf8th/my-skool-club-sub000/pkg/checkouts"
	"github.com/jimf8th/my-skool-club-sub000/pkg/config"
	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/invoices"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/schools"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("clubd exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return err
	}
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	applied, err := storage.RunMigrations(ctx, db, dialect)
	if err != nil {
		db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.WithFields(map[string]interface{}{"dialect": string(dialect), "applied": applied}).Info("Database ready")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Redis.RedisConfig)
		if err != nil {
			db.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("Redis connected; using shared role cache and distributed rate limits")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	app, err := buildApp(cfg, db, redisClient, metrics)
	if err != nil {
		db.Close()
		return err
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
	)(app.server)
	if cfg.Observability.MetricsEnabled {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, cfg.Observability.OTelServiceName)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthSrv := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs, err := newScheduler(cfg.Jobs, app, db, metrics, logger)
	if err != nil {
		db.Close()
		return err
	}

	shutdown := observability.NewShutdownManager(logger, srv, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("audit", func(context.Context) error { return app.auditSink.Close() })
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("health server", healthSrv.Shutdown)
	if jobs != nil {
		shutdown.Register("scheduler", func(ctx context.Context) error {
			select {
			case <-jobs.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		jobs.Start()
	}
	if app.localLimiters != nil {
		go app.localLimiters.login.StartCleanup(ctx)
		go app.localLimiters.caller.StartCleanup(ctx)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("Health server listening on %s", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		logger.Infof("clubd listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		logger.WithError(err).Error("Server failed")
	}
	return shutdown.Shutdown()
}

type localLimiters struct {
	login  *middleware.RateLimiter
	caller *middleware.RateLimiter
}

// application holds the wired services behind the HTTP server
type application struct {
	server        *api.Server
	services      api.Services
	auditSink     audit.Logger
	localLimiters *localLimiters
}

func buildApp(cfg *config.Config, db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics) (*application, error) {
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, fmt.Errorf("audit logger: %w", err)
	}
	sink := audit.NewMultiLogger(dbAudit, audit.LogLogger{})
	rec := audit.NewRecorder(sink)

	memberStore := members.NewStore(db).WithHashCost(cfg.Auth.BcryptCost)
	grantStore := rbac.NewStore(db)
	schoolStore := schools.NewStore(db)

	var cache rbac.RoleCache = rbac.NewLRUCache(cfg.Cache.RoleCacheSize, cfg.Cache.RoleCacheTTL)
	if redisClient != nil {
		cache = rbac.NewTieredCache(cfg.Cache.RoleCacheSize, cfg.Cache.RoleCacheTTL, rbac.NewRedisCache(redisClient, cfg.Cache.RoleCacheTTL))
	}
	resolver := rbac.NewResolver(memberStore, grantStore).WithCache(cache).WithMetrics(metrics)
	enforcer := rbac.NewEnforcer(resolver, rbac.NewGuard()).
		WithListPolicy(cfg.Policy.ListPolicy()).
		WithAudit(rec).
		WithMetrics(metrics)

	grantService := rbac.NewGrantService(grantStore, memberStore, schoolStore, enforcer).WithAudit(rec)

	invoiceService := invoices.NewService(db, schoolStore, enforcer)
	invoiceService.WithAudit(rec).WithMetrics(metrics)
	checkoutService := checkouts.NewService(db, schoolStore, enforcer)
	checkoutService.WithAudit(rec).WithMetrics(metrics)

	tokenFormat, err := cfg.Auth.TokenFormat()
	if err != nil {
		return nil, err
	}

	svc := api.Services{
		Auth: auth.NewManager(auth.NewStore(db), memberStore, cfg.Auth.TokenTTL).
			WithTokenFormat(tokenFormat).
			WithAudit(rec),
		Schools:   schools.NewService(db, schoolStore, memberStore, grantStore, grantService, enforcer).WithAudit(rec),
		Grants:    grantService,
		Invoices:  invoiceService,
		Checkouts: checkoutService,
	}

	loginCfg := middleware.LoginRateLimitConfig()
	loginCfg.RequestsPerWindow = cfg.Auth.LoginRatePerMin
	callerCfg := middleware.CallerRateLimitConfig()
	callerCfg.RequestsPerWindow = cfg.Auth.CallerRatePerMin

	app := &application{services: svc, auditSink: sink}
	opts := api.Options{MaxBodyBytes: cfg.Server.MaxBodyBytes}
	if redisClient != nil {
		opts.LoginLimiter = middleware.NewDistributedRateLimiter(redisClient, loginCfg, "ratelimit")
		opts.CallerLimiter = middleware.NewDistributedRateLimiter(redisClient, callerCfg, "ratelimit")
	} else {
		app.localLimiters = &localLimiters{
			login:  middleware.NewRateLimiter(loginCfg),
			caller: middleware.NewRateLimiter(callerCfg),
		}
		opts.LoginLimiter = app.localLimiters.login
		opts.CallerLimiter = app.localLimiters.caller
	}

	app.server = api.NewServer(svc, opts)
	return app, nil
}
