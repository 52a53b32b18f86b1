package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluelight-hub/authguard/internal/auth"
	"github.com/bluelight-hub/authguard/internal/background"
	"github.com/bluelight-hub/authguard/internal/config"
	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/bluelight-hub/authguard/internal/events"
	"github.com/bluelight-hub/authguard/internal/geo"
	"github.com/bluelight-hub/authguard/internal/handlers"
	middlewareCustom "github.com/bluelight-hub/authguard/internal/middleware"
	"github.com/bluelight-hub/authguard/internal/notify"
	"github.com/bluelight-hub/authguard/internal/ratelimit"
	"github.com/bluelight-hub/authguard/internal/repositories"
	"github.com/bluelight-hub/authguard/internal/routes"
	"github.com/bluelight-hub/authguard/internal/rules"
	"github.com/bluelight-hub/authguard/internal/services"
	pkghttp "github.com/bluelight-hub/authguard/pkg/http"
	pkglogger "github.com/bluelight-hub/authguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	ruleRepo := repositories.NewRuleRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Rate limiting: counters shared across instances via Postgres
	counterStore := ratelimit.NewPostgresStore(db)
	registry := ratelimit.NewRegistry()
	loginLimiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.Security.LoginRateLimitMax,
		Window:      cfg.Security.LoginRateLimitWindow,
		KeyPrefix:   "login:",
		KeyFunc:     ratelimit.DefaultKeyFunc,
	}, counterStore, logger)
	registry.Register("login", loginLimiter)

	// Geo resolution, cached; degrades to no-op without a database
	var resolver geo.Resolver = geo.NullResolver{}
	if cfg.GeoIP.DatabasePath != "" {
		mm, err := geo.NewMaxMindResolver(cfg.GeoIP.DatabasePath)
		if err != nil {
			logger.Error("failed to open geoip database", slog.Any("error", err))
			os.Exit(1)
		}
		resolver = geo.NewCachedResolver(mm, cfg.GeoIP.CacheTTL)
	}
	defer resolver.Close()

	// Alert delivery: SES when configured, structured log otherwise
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.Alerts.SESRegion != "" && cfg.Alerts.FromAddress != "" {
		ses, err := notify.NewSESDispatcher(cfg.Alerts.SESRegion, cfg.Alerts.FromAddress, cfg.Alerts.ToAddress, logger)
		if err != nil {
			logger.Error("failed to initialize ses dispatcher", slog.Any("error", err))
			os.Exit(1)
		}
		dispatcher = ses
	}

	// Event stream: Kafka when brokers are configured
	var sink events.Sink = events.NewLogSink(logger)
	var kafkaSink *events.KafkaSink
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafkaSink = events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, logger)
		sink = kafkaSink
	}

	// Threat rule engine
	factory := rules.NewFactory()
	engine := rules.NewEngine(logger)
	ruleService := services.NewRuleService(ruleRepo, factory, engine, logger)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if n, err := ruleService.LoadAllRules(startupCtx); err != nil {
		logger.Error("failed to load rule catalog", slog.Any("error", err))
		startupCancel()
		os.Exit(1)
	} else {
		logger.Info("rule catalog active", slog.Int("rules", n))
	}
	startupCancel()

	// Core services
	lockoutService := services.NewLockoutService(lockoutRepo, cfg.Security, logger, auditLogger)
	attemptService := services.NewAttemptService(
		attemptRepo, lockoutService, ruleService, resolver, cfg.Security,
		sink, dispatcher, logger, auditLogger,
	)
	sessionService := services.NewSessionService(
		sessionRepo, attemptRepo, resolver, cfg.Security,
		sink, dispatcher, logger, auditLogger,
	)
	verifier := auth.NewVerifier(userRepo)

	// Handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(verifier, attemptService, sessionService, lockoutService, loginLimiter, ipConfig)
	ruleHandler := handlers.NewRuleHandler(ruleService)
	adminHandler := handlers.NewAdminHandler(attemptService, lockoutService)

	// Background cleanup
	cleanupManager := background.NewCleanupManager(
		attemptRepo, counterStore, sessionRepo,
		cfg.Security.AttemptRetention, cfg.Security.CleanupInterval,
		cfg.Security.LoginRateLimitWindow,
		cfg.Security.SessionIdleTimeout, cfg.Security.SessionAbsoluteTimeout,
		logger,
	)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, ruleHandler, adminHandler)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()
	registry.DestroyAll()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("failed to close event sink", slog.Any("error", err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped cleanly")
}
