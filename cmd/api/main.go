package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/config"
	"github.com/Dan9191/cuotificador/internal/handler"
	"github.com/Dan9191/cuotificador/internal/integrations/payway"
	"github.com/Dan9191/cuotificador/internal/integrations/soapfeed"
	"github.com/Dan9191/cuotificador/internal/metrics"
	"github.com/Dan9191/cuotificador/internal/middleware"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
	"github.com/Dan9191/cuotificador/internal/quote"
	"github.com/Dan9191/cuotificador/internal/rates"
	"github.com/Dan9191/cuotificador/internal/reconciler"
	"github.com/Dan9191/cuotificador/internal/repository"
	"github.com/Dan9191/cuotificador/internal/scheduler"
	"github.com/Dan9191/cuotificador/internal/service"
	"github.com/Dan9191/cuotificador/internal/utils"
	"github.com/Dan9191/cuotificador/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := repository.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	if err := repository.Migrate(db, cfg.DBDriver); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	key, err := utils.DeriveKey(cfg.EncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to derive encryption key: %v", err)
	}
	repo := repository.NewRepository(db, key)

	// Rate table is loaded once and refreshed after every change
	table := rates.NewTable(repo)
	if err := table.Reload(ctx); err != nil {
		logger.Fatalf("Failed to load rates: %v", err)
	}
	logger.Infof("Loaded %d rate entries", len(table.Entries()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	providers, closeProviders, err := newProviders(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize providers: %v", err)
	}
	defer closeProviders()

	// Initialize layers
	resolver := rates.NewResolver(table, rates.DefaultLadder)
	quoter := quote.NewQuoter(resolver, m)
	rec := reconciler.New(repo, table, quoter, providers, m, logger)
	gate := permissions.NewGate(permissions.DefaultRolePolicy())
	svc := service.NewService(repo, table, resolver, quoter, rec, gate, m, logger)
	h := handler.NewHandler(svc, logger)

	// Setup router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	api := r.PathPrefix("/").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret, logger))
	h.Routes(api)

	// Scheduled sync
	var sched *scheduler.Scheduler
	if cfg.SyncSchedule != "" {
		var notifier scheduler.Notifier
		if cfg.ReportEmail != "" {
			notifier = email.NewSender(cfg, logger)
		}
		sched = scheduler.New(svc, notifier, cfg.ReportEmail, logger)
		if err := sched.Start(cfg.SyncSchedule); err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}

// newProviders builds the provider clients configured for this deployment
func newProviders(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (map[string]reconciler.Provider, func(), error) {
	providers := map[string]reconciler.Provider{}
	closeFn := func() {}

	if cfg.PayWayURL != "" {
		var tokens payway.TokenCache = payway.NewMemoryTokenCache()
		if cfg.RedisURL != "" {
			redisTokens, err := payway.NewRedisTokenCache(ctx, cfg.RedisURL)
			if err != nil {
				return nil, closeFn, err
			}
			tokens = redisTokens
			closeFn = func() {
				if err := redisTokens.Close(); err != nil {
					logger.Warnf("Failed to close redis: %v", err)
				}
			}
		}
		providers[models.ProviderPayWay] = payway.NewClient(cfg.PayWayURL, cfg.PayWayTokenLeadTime, tokens, logger)
	}
	if cfg.SOAPFeedURL != "" {
		providers[models.ProviderSOAPFeed] = soapfeed.NewClient(cfg.SOAPFeedURL, logger)
	}
	return providers, closeFn, nil
}
