// Package main provides the API server entry point for the IP report scanner service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ip-report-scanner/internal/api"
	"github.com/ip-report-scanner/internal/cache"
	"github.com/ip-report-scanner/internal/config"
	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/provider"
	"github.com/ip-report-scanner/internal/scan"
	"github.com/ip-report-scanner/internal/storage"
)

func main() {
	fmt.Println("IP Report Scanner API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	profileCache, err := cache.NewProfileCache(&cfg.Database.Redis, cfg.Cache.TTL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer profileCache.Close()

	logger.Info("Database connections established")

	// Initialize provider adapters
	logger.Info("Initializing provider adapters...")
	registry := provider.NewRegistry()

	for _, name := range cfg.Providers.Enabled {
		switch name {
		case provider.ProviderAbuseIPDB:
			if cfg.Providers.AbuseIPDB.APIKey == "" {
				logger.WithFields(map[string]interface{}{
					"provider": name,
				}).Warn("Skipping provider: no API key configured")
				continue
			}

			adapter := provider.NewAbuseIPDBAdapter(
				cfg.Providers.AbuseIPDB.APIKey,
				provider.WithBaseURL(cfg.Providers.AbuseIPDB.BaseURL),
				provider.WithMaxAgeDays(cfg.Providers.AbuseIPDB.MaxAgeDays),
			)
			throttled := provider.Throttle(adapter, cfg.Providers.AbuseIPDB.RPS, cfg.Providers.AbuseIPDB.Burst)
			guarded := provider.Break(throttled, provider.DefaultBreakerConfig(), logger)

			if err := registry.Register(guarded); err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"provider": name,
				}).Warn("Failed to register provider")
				continue
			}

			logger.WithFields(map[string]interface{}{
				"provider": name,
				"rps":      cfg.Providers.AbuseIPDB.RPS,
			}).Info("Provider adapter initialized")
		default:
			logger.WithFields(map[string]interface{}{
				"provider": name,
			}).Warn("Skipping unknown provider")
		}
	}

	if len(registry.IDs()) == 0 {
		logger.Warn("No provider adapters initialized - report submissions will fail")
	}

	// Initialize repositories
	profileRepo := storage.NewProfileRepository(postgres)
	reportRepo := storage.NewReportRepository(postgres)
	jobRepo := storage.NewJobRepository(postgres)

	// Initialize the scan engine
	logger.Info("Initializing scan engine...")

	engine := scan.NewEngine(scan.Config{
		Workers:     cfg.Scan.Workers,
		QueueSize:   cfg.Scan.QueueSize,
		MaxAttempts: cfg.Scan.MaxAttempts,
		BackoffBase: cfg.Scan.BackoffBase,
		BackoffCap:  cfg.Scan.BackoffCap,
		CallTimeout: cfg.Scan.CallTimeout,
	}, scan.Deps{
		Profiles: profileRepo,
		Reports:  reportRepo,
		Jobs:     jobRepo,
		Cache:    profileCache,
		Registry: registry,
		Logger:   logger,
	})

	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	if err := engine.Start(engineCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start scan engine")
	}

	logger.WithFields(map[string]interface{}{
		"workers":      cfg.Scan.Workers,
		"max_attempts": cfg.Scan.MaxAttempts,
	}).Info("Scan engine started")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		FreeTierRPS:     cfg.RateLimit.FreeTier,
		BasicTierRPS:    cfg.RateLimit.BasicTier,
		PremiumTierRPS:  cfg.RateLimit.PremiumTier,
	}

	server := api.NewServer(serverConfig, engine, postgres)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	engineCancel()
	engine.Stop()

	logger.Info("Server exited")
}
