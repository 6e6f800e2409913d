package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"signal-store/config"
	"signal-store/database"
	"signal-store/executor"
	"signal-store/handlers"
	"signal-store/ingestion"
	"signal-store/logging"
	"signal-store/router"
	"signal-store/semantic"
	"signal-store/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Structured store
	var st *store.Store
	if cfg.Store.Enabled {
		db, err := database.Open(cfg.Store.Path, logger)
		if err != nil {
			logger.Fatal("Failed to open signal store", zap.String("path", cfg.Store.Path), zap.Error(err))
		}
		defer func() { _ = database.Close(db) }()
		st = store.New(db, logger, store.Options{
			QueryTimeout:   cfg.Store.QueryTimeout(),
			HistoryDefault: cfg.Store.HistoryDefault,
			HistoryMax:     cfg.Store.HistoryMax,
		})
		logger.Info("Signal store opened", zap.String("path", cfg.Store.Path))
	} else {
		logger.Warn("Signal store disabled; every query goes to the semantic engine")
	}

	// Semantic engine
	var engine semantic.Engine = semantic.Unavailable{}
	if cfg.Semantic.URL != "" {
		engine = semantic.NewClient(cfg.Semantic.URL, cfg.Semantic.APIKey,
			cfg.Semantic.QueryTimeout(), cfg.Semantic.IngestTimeout(), logger)
	} else {
		logger.Warn("SEMANTIC_ENGINE_URL not set; semantic answers are unavailable")
	}

	// Divergence journal
	var journal ingestion.Journal = ingestion.NewMemoryJournal()
	if cfg.Ingestion.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := ingestion.NewRedisClient(ctx, cfg.Ingestion.RedisAddr)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Ingestion.RedisAddr), zap.Error(err))
		}
		defer client.Close()
		journal = ingestion.NewRedisJournal(client, "")
	}

	rt := router.New(
		router.WithThreshold(cfg.Routing.ConfidenceThreshold),
		router.WithKnownTickers(cfg.Routing.KnownTickers...),
		router.WithStructuredEnabled(cfg.Store.Enabled),
	)
	writer := ingestion.NewWriter(st, engine, logger,
		ingestion.WithJournal(journal),
		ingestion.WithConcurrency(cfg.Ingestion.Concurrency))
	exec := executor.New(rt, st, engine, logger, executor.Options{
		Timeout:         cfg.QueryTimeout(),
		SemanticTimeout: cfg.Semantic.QueryTimeout(),
		StoreTimeout:    cfg.Store.QueryTimeout(),
		Modes:           semantic.ParseModes(cfg.Semantic.Modes),
	})

	// Reconciliation of dual-write divergences
	scheduler := cron.New()
	if cfg.Ingestion.ReconcileSchedule != "" {
		_, err := scheduler.AddFunc(cfg.Ingestion.ReconcileSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Semantic.IngestTimeout()*2)
			defer cancel()
			if _, err := writer.Replay(ctx); err != nil {
				logger.Error("Scheduled reconciliation failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("Invalid reconcile schedule", zap.String("schedule", cfg.Ingestion.ReconcileSchedule), zap.Error(err))
		}
		scheduler.Start()
	}

	// Gin
	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.New(st, writer, exec, logger).Register(r)

	server := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.QueryTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Starting signal store server", zap.String("addr", cfg.BindAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down server...")
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}
