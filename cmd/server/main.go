package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"loyalty-hub/internal/api"
	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/event"
	"loyalty-hub/internal/kv"
	"loyalty-hub/internal/repository"
	"loyalty-hub/internal/repository/memory"
	"loyalty-hub/internal/repository/postgres"
	"loyalty-hub/internal/scheduler"
	schedulerjobs "loyalty-hub/internal/scheduler/jobs"
	"loyalty-hub/internal/service"
	"loyalty-hub/internal/sse"
	jwtutil "loyalty-hub/pkg/jwt"
	systemlog "loyalty-hub/pkg/logger"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			if err := runMigrateCommand(os.Args[2:]); err != nil {
				// #nosec G705 -- CLI output only; control characters are stripped.
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		case "serve":
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (expected serve, migrate or healthcheck)\n", os.Args[1])
			os.Exit(2)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, recentLogs, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	if !strings.EqualFold(cfg.App.Env, "development") {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := newStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("open ledger store failed", zap.Error(err))
	}
	defer closeStore()

	publicKey, err := jwtutil.LoadPublicKey(cfg.Security.JWTPublicKey, cfg.Security.JWTPublicKeyFile)
	if err != nil {
		// Without a key every authenticated route answers 401; triggers still work.
		logger.Error("load jwt public key failed", zap.Error(err))
	}
	if strings.TrimSpace(cfg.Security.InternalToken) == "" {
		logger.Warn("security.internal_token is empty; trigger and metrics endpoints will reject every call")
	}

	var rateCounter middleware.SharedCounter
	redisClient, err := kv.Open(cfg.Redis.URL, cfg.Redis.Prefix)
	switch {
	case errors.Is(err, kv.ErrNotConfigured):
		logger.Info("redis not configured, rate limits are per instance")
	case err != nil:
		logger.Warn("redis unavailable, rate limits are per instance", zap.Error(err))
	default:
		defer redisClient.Close() //nolint:errcheck
		rateCounter = redisClient
	}

	middleware.SetMaintenanceMode(cfg.Maintenance.Enabled)

	minPayout, _ := cfg.minPayout()
	eventBus := event.NewBus()
	services := api.Services{
		Points:    service.NewPointsService(store, eventBus, logger),
		Referrals: service.NewReferralService(store, eventBus, logger),
		Cashback:  service.NewCashbackService(store, eventBus, minPayout, logger),
		Promos:    service.NewPromoCodeService(store, eventBus, logger),
		Orders:    service.NewOrderService(store, eventBus, logger),
		Audit:     service.NewAuditService(store, logger),
	}

	sseHub := sse.NewHub(logger)
	defer sseHub.Close()
	sse.NewNotifier(sseHub, logger).Attach(eventBus)

	if cfg.Scheduler.Enabled {
		cronRunner := scheduler.NewScheduler(scheduler.Deps{
			RedemptionJob:   schedulerjobs.NewRedemptionJob(services.Points, logger),
			ReferralCodeJob: schedulerjobs.NewReferralCodeJob(services.Referrals, logger),
		}, logger)
		cronRunner.Start()
		defer func() {
			stopCtx := cronRunner.Stop()
			select {
			case <-stopCtx.Done():
			case <-time.After(2 * time.Second):
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		PublicKey:      publicKey,
		InternalToken:  cfg.Security.InternalToken,
		AllowOrigins:   cfg.allowOrigins(),
		PromoRateLimit: cfg.RateLimit.PromoPerMinute,
		RateCounter:    rateCounter,
		Store:          store,
		Hub:            sseHub,
		Logs:           recentLogs,
		Metrics:        promhttp.Handler(),
		Logger:         logger,
	}, services)

	readyHandler := func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Database.PingTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "store unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
	router.GET("/health/ready", readyHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("server started",
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close streams first so Shutdown does not wait on open SSE connections.
	sseHub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
	eventBus.Wait()
}

func newLogger(cfg Config) (*zap.Logger, *systemlog.RecentLogs, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger failed: %w", err)
	}

	recent := systemlog.NewRecentLogs(cfg.Log.RecentEntries, zapcore.WarnLevel)
	return recent.Tee(logger), recent, nil
}

func newStore(ctx context.Context, cfg Config, logger *zap.Logger) (repository.Store, func(), error) {
	if strings.EqualFold(cfg.Store.Driver, storeDriverMemory) {
		logger.Warn("using in-memory ledger store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(pool, cfg.Store.TxTimeout), pool.Close, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	port := strings.TrimSpace(os.Getenv("LOYALTY_SERVER_PORT"))
	if port == "" {
		port = "8080"
	}

	resp, err := client.Get("http://localhost:" + port + "/health/ready")
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}
