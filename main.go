package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	appchat "github.com/CodeHalwell/MyGPT/application/chat"
	"github.com/CodeHalwell/MyGPT/domain/chat"
	"github.com/CodeHalwell/MyGPT/domain/embedding"
	"github.com/CodeHalwell/MyGPT/domain/model"
	infraembedding "github.com/CodeHalwell/MyGPT/infrastructure/embedding"
	infrapersistence "github.com/CodeHalwell/MyGPT/infrastructure/persistence"
	"github.com/CodeHalwell/MyGPT/infrastructure/providers"
	httpiface "github.com/CodeHalwell/MyGPT/interfaces/http"
	"github.com/CodeHalwell/MyGPT/internal/config"
)

func main() {
	ctx := context.Background()

	// Credentials in development come from .env; absence is fine in
	// containerized deployments where the environment is prewired.
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded environment from .env file")
	}

	cfg, err := config.LoadYAML("")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	setupLogging(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"host":               cfg.Server.Host,
		"port":               cfg.Server.Port,
		"enable_persistence": cfg.Database.EnablePersistence,
		"embedding_service":  cfg.Embedding.ServiceType,
		"has_provider_keys":  cfg.HasAnyProviderKey(),
	}).Info("Starting MyGPT stream core")

	adapters, fallback := buildAdapters(ctx, cfg)

	var service *appchat.Service
	var router *httpiface.Router
	var dbManager *infrapersistence.DatabaseManager
	var eventProcessor *infrapersistence.EventProcessor
	var embedService embedding.Service

	if cfg.Database.EnablePersistence {
		dbManager = infrapersistence.NewDatabaseManager()

		if err := dbManager.Connect(ctx, cfg.GetDatabaseDSN()); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}
		if err := dbManager.Migrate(); err != nil {
			logrus.WithError(err).Fatal("Failed to run database migrations")
		}

		sessionRepo, metricsRepo, feedbackRepo := dbManager.GetRepositories()

		eventProcessor = infrapersistence.NewEventProcessor(
			sessionRepo,
			metricsRepo,
			feedbackRepo,
			cfg.Database.Workers,
			cfg.Database.BufferSize,
		)
		if err := eventProcessor.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start event processor")
		}

		tracker := infrapersistence.NewSessionTracker(eventProcessor)

		embedService, err = infraembedding.NewService(
			infraembedding.ServiceType(cfg.Embedding.ServiceType),
			embedding.Config{
				ServiceURL:       cfg.Embedding.ServiceURL,
				MaxWorkers:       cfg.Embedding.MaxWorkers,
				CacheSize:        cfg.Embedding.CacheSize,
				InferenceTimeout: cfg.Embedding.TimeoutMs,
			},
		)
		if err != nil {
			logrus.WithError(err).Warn("Embedding service unavailable, session embeddings disabled")
			embedService = nil
		}

		service = appchat.NewService(adapters, fallback, tracker, embedService, logrus.StandardLogger())
		router = httpiface.NewRouterWithPersistence(
			service, cfg.Server.CorsOrigins,
			tracker, metricsRepo, sessionRepo, dbManager, eventProcessor,
			embedProbeOrNil(embedService),
		)

		logrus.Info("Persistence layer initialized successfully")
	} else {
		service = appchat.NewServiceWithoutTracking(adapters, fallback, logrus.StandardLogger())
		router = httpiface.NewRouter(service, cfg.Server.CorsOrigins)

		logrus.Info("Running without persistence layer")
	}

	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streams run long; the write timeout has to cover a whole
		// model response, not a single handler.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if cfg.Database.EnablePersistence {
		logrus.Info("Shutting down persistence layer...")

		if embedService != nil {
			if err := embedService.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close embedding service")
			}
		}
		if eventProcessor != nil {
			if err := eventProcessor.Stop(); err != nil {
				logrus.WithError(err).Error("Failed to stop event processor")
			}
		}
		if dbManager != nil {
			if err := dbManager.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close database connection")
			}
		}

		logrus.Info("Persistence layer shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetReportCaller(cfg.ReportCaller)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		logrus.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}
}

// buildAdapters constructs one adapter per provider, each behind its own
// circuit breaker. Adapters with a blank key stay in the map; they report
// unavailable and the dispatcher routes around them.
func buildAdapters(ctx context.Context, cfg *config.Config) (map[model.Provider]chat.Adapter, chat.Adapter) {
	logger := logrus.StandardLogger()

	cbConfig := providers.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	wrap := func(a chat.Adapter) chat.Adapter {
		return providers.NewCircuitBreakerAdapter(a, cbConfig)
	}

	adapters := map[model.Provider]chat.Adapter{
		model.ProviderOpenAI:    wrap(providers.NewOpenAI(cfg.Providers.OpenAIKey)),
		model.ProviderAnthropic: wrap(providers.NewAnthropic(cfg.Providers.AnthropicKey, logger)),
		model.ProviderGoogle:    wrap(providers.NewGoogle(ctx, cfg.Providers.GoogleKey, logger)),
		model.ProviderMistral:   wrap(providers.NewMistral(cfg.Providers.MistralKey, logger)),
	}

	for provider, adapter := range adapters {
		logrus.WithFields(logrus.Fields{
			"provider":  provider,
			"available": adapter.Available(),
		}).Info("Provider adapter configured")
	}
	logrus.WithFields(logrus.Fields{
		"enabled":           cbConfig.Enabled,
		"failure_threshold": cbConfig.FailureThreshold,
		"timeout":           cbConfig.Timeout,
	}).Info("Circuit breaker configured")

	return adapters, providers.NewFallback()
}

// embedProbeOrNil avoids handing the router a typed-nil interface when the
// embedding service failed to start.
func embedProbeOrNil(service embedding.Service) httpiface.EmbeddingProbe {
	if service == nil {
		return nil
	}
	return service
}
