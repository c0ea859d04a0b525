package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sportscouncil/tournament-gateway/config"
	"github.com/sportscouncil/tournament-gateway/internal/account"
	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"github.com/sportscouncil/tournament-gateway/internal/health"
	"github.com/sportscouncil/tournament-gateway/internal/logger"
	"github.com/sportscouncil/tournament-gateway/internal/metrics"
	"github.com/sportscouncil/tournament-gateway/internal/middleware"
	"github.com/sportscouncil/tournament-gateway/internal/ratelimit"
	"github.com/sportscouncil/tournament-gateway/internal/store"
	"github.com/sportscouncil/tournament-gateway/internal/telegram"
	"go.uber.org/zap"
)

func main() {
	// 0. Load Config
	env := os.Getenv("APP_ENV")
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Server.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if cfg.JWT.Generated {
		zl.Warn("JWT_SECRET not set; using a random per-process secret, tokens will not survive a restart")
	}

	// 1. Setup
	switch cfg.Server.Mode {
	case config.ModeRelease:
		gin.SetMode(gin.ReleaseMode)
	case config.ModeTest:
		gin.SetMode(gin.TestMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Development() {
		r.Use(gin.Logger())
	}

	// 2. Credential store
	ctx := context.Background()
	users, err := store.Open(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to open credential store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	// 3. Services
	hasher, err := auth.NewBcryptHasher(cfg.Password.Cost)
	if err != nil {
		zl.Fatal("Invalid password cost", zap.Error(err))
	}
	tokens, err := auth.NewJWTService([]byte(cfg.JWT.Secret), cfg.JWT.TTL, auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		zl.Fatal("Failed to init token service", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observers := auth.Observers{metrics.NewAuthMetrics(registry)}

	// 3.1 Telegram alerts (Optional)
	var alerter *telegram.Alerter
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		sender, err := telegram.NewBotSender(cfg.Telegram.Token, cfg.Server.Mode == config.ModeDebug)
		if err != nil {
			zl.Warn("Failed to init Telegram bot, alerts disabled", zap.Error(err))
		} else {
			alerter = telegram.NewAlerter(sender, cfg.Telegram.ChatID, zl.Named("alert"))
			observers = append(observers, alerter)
		}
	} else {
		zl.Info("Telegram token not found, skipping alert init")
	}

	// 3.2 Login throttle (Optional)
	var limiter ratelimit.Limiter = ratelimit.Nop{}
	var rdb *redis.Client
	if cfg.Redis.Addr != "" && cfg.LoginLimit.Attempts > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.LoginLimit.Attempts, cfg.LoginLimit.Window)
	} else {
		zl.Info("Redis address not set, login throttling disabled")
	}

	authenticator := auth.NewAuthenticator(users, hasher, tokens,
		auth.WithLogger(zl.Named("auth")),
		auth.WithObserver(observers),
		auth.WithLookupTimeout(cfg.Auth.LookupTimeout),
	)

	// 4. Handlers
	healthHandler := health.NewHealthHandler().WithStore(users)
	accountHandler := account.NewHandler(authenticator, users, hasher, limiter, zl.Named("account"))

	// 5. Routes
	// Public
	r.GET("/health", healthHandler.Check)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	r.POST("/token", accountHandler.Login)

	// Protected API
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(authenticator))
	{
		api.GET("/user/me", accountHandler.Me)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(auth.RoleAdmin))
		admin.POST("/users", accountHandler.CreateUser)
		admin.PATCH("/users/:username", accountHandler.UpdateUser)
	}

	// 6. Run
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("Starting tournament gateway", zap.String("addr", srv.Addr), zap.String("env", env), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown failed", zap.Error(err))
	}
	if alerter != nil {
		alerter.Close()
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			zl.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if err := users.Close(shutdownCtx); err != nil {
		zl.Warn("Failed to close credential store", zap.Error(err))
	}
}
