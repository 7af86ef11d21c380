package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"route-tracker/internal/core/config"
	"route-tracker/internal/core/logger"
	"route-tracker/internal/core/server"
	"route-tracker/internal/core/storage"
	alertadapters "route-tracker/internal/features/alerts/adapters"
	alerthandler "route-tracker/internal/features/alerts/handler"
	alertservice "route-tracker/internal/features/alerts/service"
	completionhandler "route-tracker/internal/features/completion/handler"
	completionservice "route-tracker/internal/features/completion/service"
	offlineadapters "route-tracker/internal/features/offline/adapters"
	offlineports "route-tracker/internal/features/offline/ports"
	offlineservice "route-tracker/internal/features/offline/service"
	sessionhandler "route-tracker/internal/features/session/handler"
	sessionservice "route-tracker/internal/features/session/service"
	syncadapters "route-tracker/internal/features/sync/adapters"
	synchandler "route-tracker/internal/features/sync/handler"
	syncservice "route-tracker/internal/features/sync/service"

	"go.uber.org/zap"
)

// @title Route Tracker API
// @version 1.0
// @description Offline-first route session tracking for logistics riders.
// @contact.name API Support
// @contact.email support@routetracker.dev
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Application starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.String("queue_backend", cfg.Queue.Backend),
	)

	// Offline queue store, sqlite by default.
	var store offlineports.Store
	switch cfg.Queue.Backend {
	case "redis":
		client, err := storage.NewRedisClient(cfg.Queue.RedisURL)
		if err != nil {
			l.Fatal("Failed to connect to redis queue store", zap.Error(err))
		}
		store = offlineadapters.NewRedisStore(client)
	default:
		db, err := storage.OpenSQLite(cfg.Queue.SQLitePath)
		if err != nil {
			l.Fatal("Failed to open sqlite queue store", zap.Error(err))
		}
		sqliteStore, err := offlineadapters.NewSQLiteStore(db)
		if err != nil {
			l.Fatal("Failed to prepare sqlite queue store", zap.Error(err))
		}
		store = sqliteStore
	}
	defer store.Close()

	queue := offlineservice.NewQueue(store, offlineservice.Config{
		MaxSyncAttempts: cfg.Sync.MaxAttempts,
		BatchSize:       cfg.Sync.BatchSize,
	})

	// Session tracking.
	bus := sessionservice.NewBus()
	tracker := sessionservice.NewTracker(sessionservice.TrackerConfig{
		Metrics: sessionservice.MetricsConfig{
			AccuracyCeilingMeters: cfg.Tracking.AccuracyCeilingMeters,
			ClockSkew:             cfg.Tracking.ClockSkew(),
		},
	}, queue, bus)
	sessionHdl := sessionhandler.NewSessionHandler(tracker)

	// Smart completion, fed by the session event bus.
	detector := completionservice.NewDetector(tracker, completionservice.Config{
		RadiusMeters:  cfg.Completion.RadiusMeters,
		MinElapsed:    cfg.Completion.MinElapsed(),
		MinDistanceKm: cfg.Completion.MinDistanceKm,
		AutoConfirm:   cfg.Completion.AutoConfirm(),
	})
	bus.Subscribe(detector)
	completionHdl := completionhandler.NewCompletionHandler(detector)

	// Operator alerts, redis-backed when available.
	var kv storage.KV
	if adapter, err := storage.NewRedisAdapter(cfg.Queue.RedisURL); err == nil {
		kv = adapter
	} else {
		l.Warn("Redis unavailable, keeping alerts in memory", zap.Error(err))
		kv = storage.NewMemoryAdapter()
	}
	defer kv.Close()
	alertSvc := alertservice.NewAlertService(alertadapters.NewKVAlertRepository(kv))
	alertHdl := alerthandler.NewAlertHandler(alertSvc)

	// Sync engine against the remote routes service.
	remote := syncadapters.NewHTTPRemote(cfg.Sync.BaseURL, cfg.Sync.HTTPTimeout())
	probe := syncadapters.NewHTTPProbe(cfg.Sync.BaseURL, cfg.Sync.HTTPTimeout())
	engine := syncservice.NewEngine(queue, remote, probe, syncservice.Config{
		Interval:  cfg.Sync.Interval(),
		BatchSize: cfg.Sync.BatchSize,
		Retention: cfg.Sync.Retention(),
	}, syncservice.WithAlerter(alertSvc))
	syncHdl := synchandler.NewSyncHandler(engine, queue)

	engine.Start(context.Background())
	defer engine.Stop()

	srv := server.New(cfg)

	// Register Routes
	srv.App.Post("/sessions/start", sessionHdl.StartSession)
	srv.App.Post("/sessions/pause", sessionHdl.PauseSession)
	srv.App.Post("/sessions/resume", sessionHdl.ResumeSession)
	srv.App.Post("/sessions/stop", sessionHdl.StopSession)
	srv.App.Post("/sessions/position", sessionHdl.RecordPosition)
	srv.App.Post("/sessions/shipment-event", sessionHdl.RecordShipmentEvent)
	srv.App.Get("/sessions/current", sessionHdl.GetCurrentSession)
	srv.App.Get("/completion", completionHdl.GetState)
	srv.App.Post("/completion/confirm", completionHdl.Confirm)
	srv.App.Post("/completion/cancel", completionHdl.Cancel)
	srv.App.Post("/sync/run", syncHdl.RunPass)
	srv.App.Get("/sync/status", syncHdl.GetStatus)
	srv.App.Get("/sync/failures", syncHdl.ListFailures)
	srv.App.Post("/sync/failures/:id/ack", syncHdl.AcknowledgeFailure)
	srv.App.Get("/alerts", alertHdl.ListAlerts)
	srv.App.Post("/alerts/:id/ack", alertHdl.AcknowledgeAlert)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		l.Fatal("Server failed to start", zap.Error(err))
	case sig := <-quit:
		l.Info("Shutting down", zap.String("signal", sig.String()))
		if err := srv.App.Shutdown(); err != nil {
			l.Error("Server shutdown failed", zap.Error(err))
		}
	}
}
