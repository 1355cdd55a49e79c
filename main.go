package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse/internal/config"
	"pulse/internal/controllers"
	"pulse/internal/middleware"
	"pulse/internal/repository"
	"pulse/internal/routes"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	issueToken := flag.String("issue-token", "", "print a signed token for `tenant` and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if isFlagSet("issue-token") {
		if err := printToken(cfg, *issueToken); err != nil {
			fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := newLogger(cfg.Log)
	if cfg.ConfigPath != "" {
		logger.Infof("[CONFIG] Loaded %s", cfg.ConfigPath)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("[SERVER] exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		ruleRepo services.RuleRepository
		workload services.WorkloadCounter
	)
	store, err := repository.Open(cfg.Storage.SQLitePath)
	if err != nil {
		logger.WithError(err).Warn("[STORAGE] SQLite unavailable, rules will not be persisted")
	} else {
		defer store.Close()
		ruleRepo, workload = store, store
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	telemetry := services.NewTelemetry(registry)

	engine := services.NewEngine(services.EngineConfig{
		BufferCapacity: cfg.Buffer.Capacity,
		SnapshotSize:   cfg.Snapshot.Size,
		AlertRetention: cfg.Alerts.Retention,
		QueueSize:      cfg.Subscriber.QueueSize,
	}, services.EngineDeps{
		Workload:  workload,
		Rules:     ruleRepo,
		Cache:     newCache(ctx, cfg, logger),
		Telemetry: telemetry,
		Logger:    logger,
	})
	defer engine.Close()

	if err := engine.LoadRules(ctx, cfg.Alerts.Rules); err != nil {
		return fmt.Errorf("loading alert rules: %w", err)
	}

	var auth *services.AuthService
	if cfg.Auth.Enabled {
		auth, err = services.NewAuthService(cfg.Auth.Secret, cfg.Auth.TokenExpiry)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("[AUTH] Authentication disabled, tenant is taken from the query string")
	}

	sampler := services.NewHostSampler(cfg.Collector.DiskPath, cfg.Collector.NetworkCapacityMbps)
	security := middleware.NewSecurityLogger(logger)

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(routes.Handlers{
		Metrics:    controllers.NewMetricsController(engine, sampler),
		Samples:    controllers.NewSamplesController(engine),
		Executions: controllers.NewExecutionsController(engine),
		Alerts:     controllers.NewAlertsController(engine, logger),
		WebSocket:  controllers.NewWebSocketController(engine, security, logger, cfg.CORS.AllowedOrigins),
	}, routes.Options{
		Auth:           auth,
		Security:       security,
		RateLimiter:    middleware.NewRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
		Whitelist:      middleware.NewIPWhitelist(cfg.Server.AllowedIPs),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Gatherer:       registry,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Collector.Enabled {
		collector := services.NewCollector(engine, sampler, cfg.Collector.Interval, logger)
		g.Go(func() error {
			return collector.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Infof("[SERVER] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[SERVER] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		engine.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newCache picks the metrics cache driver. A Redis server that cannot be
// reached at startup is still used; GetMetrics falls back to computing on
// every cache error.
func newCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) services.MetricsCache {
	if cfg.Cache.TTL == 0 {
		return nil
	}
	if cfg.Cache.Driver != "redis" {
		return services.NewMemoryCache(cfg.Cache.TTL)
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warnf("[CACHE] Redis at %s not reachable", cfg.Redis.Addr)
	} else {
		logger.Infof("[CACHE] Using Redis at %s", cfg.Redis.Addr)
	}
	return services.NewRedisCache(rc, cfg.Cache.TTL)
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("[CONFIG] Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// printToken issues a token for tenant. An empty tenant issues an operator
// token that sees every tenant.
func printToken(cfg *config.Config, tenant string) error {
	if tenant != "" && !middleware.NewInputValidator().ValidateTenant(tenant) {
		return fmt.Errorf("invalid tenant %q", tenant)
	}
	auth, err := services.NewAuthService(cfg.Auth.Secret, cfg.Auth.TokenExpiry)
	if err != nil {
		return err
	}
	token, err := auth.GenerateToken(tenant)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
