package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rate_change_notifier/internal/app"
	domainalert "rate_change_notifier/internal/domain/alert"
	"rate_change_notifier/internal/infra/alert"
	infraclio "rate_change_notifier/internal/infra/clio"
	"rate_change_notifier/internal/infra/config"
	idb "rate_change_notifier/internal/infra/database"
	"rate_change_notifier/internal/infra/httpapi"
	"rate_change_notifier/internal/infra/logger"
	"rate_change_notifier/internal/infra/scheduler"
	"rate_change_notifier/internal/infra/secrets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Clio field: %s", cfg.LogLevel, cfg.Environment, cfg.ClioFieldID)

	// Two independent stores: the notification-tracking database (system of
	// record for the engine) and the legacy practice database (matters).
	trackingDB, err := idb.NewPostgresConnection(cfg.TrackingDatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to tracking database: %v", err)
	}
	defer trackingDB.Close()
	log.Info("Tracking database connection established")

	practiceDB, err := idb.NewPostgresConnection(cfg.PracticeDatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to practice database: %v", err)
	}
	defer practiceDB.Close()
	log.Info("Practice database connection established")

	recordRepo := idb.NewPostgresRateChangeRepository(trackingDB)
	matterRepo := idb.NewPostgresMatterRepository(practiceDB)

	creds, err := secrets.NewEnvStore().Lookup(cfg.CredentialSelector)
	if err != nil {
		log.Fatalf("Could not resolve Clio credentials: %v", err)
	}

	clioClient := infraclio.NewClient(infraclio.ClientOptions{
		BaseURL:     cfg.ClioBaseURL,
		FieldID:     cfg.ClioFieldID,
		Credentials: creds,
		Logger:      log.WithField("component", "clio"),
	})

	var notifier domainalert.Notifier
	if cfg.AlertTelegramToken != "" {
		tn, err := alert.NewTelebotNotifier(cfg.AlertTelegramToken, cfg.AlertTelegramChatID)
		if err != nil {
			log.Fatalf("Could not create escalation alert notifier: %v", err)
		}
		notifier = tn
		log.Info("Escalation alerts enabled")
	}

	syncService := app.NewSyncService(clioClient, clioClient, log.WithField("component", "sync"))
	actionService := app.NewRateChangeService(recordRepo, syncService, notifier, log.WithField("component", "ratechange"))
	viewService := app.NewViewService(matterRepo, recordRepo, log.WithField("component", "views"))

	reminder := scheduler.NewReminderScheduler(viewService, log.WithField("component", "scheduler"), cfg.CronSpecPendingReminder)
	if err := reminder.Start(); err != nil {
		log.Fatalf("Could not start pending-reminder scheduler: %v", err)
	}

	apiServer := httpapi.NewServer(actionService, viewService, log.WithField("component", "httpapi"))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the streaming endpoints hold the response open
		// for the full length of a batch run.
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	reminder.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}
	log.Info("Application shut down gracefully")
}
