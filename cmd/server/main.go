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
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sentinel-monitor/internal/api"
	"sentinel-monitor/internal/checker"
	"sentinel-monitor/internal/config"
	"sentinel-monitor/internal/database"
	"sentinel-monitor/internal/history"
	"sentinel-monitor/internal/logging"
	"sentinel-monitor/internal/progress"
	"sentinel-monitor/internal/ratelimit"
	"sentinel-monitor/internal/scan"
	"sentinel-monitor/internal/scheduler"
	"sentinel-monitor/internal/secret"
	"sentinel-monitor/internal/services"
)

const (
	shutdownTimeout   = 30 * time.Second
	progressRetention = 10 * time.Minute
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, logger.Named(logging.NameDatabase))
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	cipher, err := secret.NewCipher(cfg.Secret.Key)
	if err != nil {
		return fmt.Errorf("set %s or secret.key: %w", config.EnvSecretKey, err)
	}
	recorder := history.NewRecorder(db)

	// Initialize notification dispatch
	notifyLogger := logger.Named(logging.NameNotify)
	var mailer services.Mailer
	if m := services.NewSMTPMailer(cfg.Notifications.Email, notifyLogger); m != nil {
		mailer = m
	}
	dispatcher, err := services.NewDispatcher(db, cfg.Notifications, mailer, notifyLogger)
	if err != nil {
		return err
	}

	// Initialize schedulers
	deps := scheduler.Deps{DB: db, Recorder: recorder, Notifier: dispatcher, Logger: logger}
	certs := scheduler.NewCertificateScheduler(deps,
		checker.NewCertificateInspector(cfg.Checker.TLSTimeout.Std()))
	apps := scheduler.NewAppScheduler(deps,
		checker.NewAvailabilityProber(cfg.Checker.AvailabilityTimeout.Std(), cfg.Checker.UserAgent),
		checker.NewLoginAutomator(cfg.Checker.LoginTimeout.Std(), cfg.Checker.UserAgent),
		cipher)
	if err := certs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start certificate scheduler: %w", err)
	}
	if err := apps.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start application scheduler: %w", err)
	}

	// Scans and progress
	scanLogger := logger.Named(logging.NameScan)
	scanBroker := progress.NewBroker(scanLogger, progressRetention)
	batchBroker := progress.NewBroker(logger.Named(logging.NameAPI), progressRetention)
	scans := scan.NewManager(scan.NewRunner(cfg.Scan, scanLogger), scanBroker, dispatcher, cfg.Scan.MaxConcurrent, scanLogger)

	apiLogger := logger.Named(logging.NameAPI)
	handler := api.NewHandler(api.Deps{
		Monitors:      services.NewMonitorService(db, certs, apps, cipher, recorder, apiLogger),
		Configs:       services.NewNotificationConfigService(db, apiLogger),
		Tester:        dispatcher,
		Certificates:  certs,
		Apps:          apps,
		Recorder:      recorder,
		Scans:         scans,
		ScanBroker:    scanBroker,
		BatchBroker:   batchBroker,
		CheckLimits:   ratelimit.NewStore(cfg.API.CheckNowRate, cfg.API.CheckNowBurst),
		Logger:        apiLogger,
		AllowedOrigin: strings.TrimRight(cfg.Notifications.DashboardURL, "/"),
	})

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(apiLogger), api.CORS(handler.AllowedOrigin))
	api.SetupRoutes(r, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Combine(
		runErr,
		srv.Shutdown(shutdownCtx),
		handler.Close(shutdownCtx),
		scans.Stop(shutdownCtx),
		certs.Stop(shutdownCtx),
		apps.Stop(shutdownCtx),
	)
}
