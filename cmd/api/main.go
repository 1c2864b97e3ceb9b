package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/loan-service/internal/config"
	"github.com/Dan9191/loan-service/internal/handler"
	"github.com/Dan9191/loan-service/internal/integrations/cbr"
	"github.com/Dan9191/loan-service/internal/jobs"
	"github.com/Dan9191/loan-service/internal/middleware"
	"github.com/Dan9191/loan-service/internal/repository"
	"github.com/Dan9191/loan-service/internal/service"
	"github.com/Dan9191/loan-service/internal/utils"
	"github.com/Dan9191/loan-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var repo repository.Store
	switch cfg.Storage {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on restart")
		repo = repository.NewMemoryRepository()
	default:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		pg := repository.NewRepository(db)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("Failed to apply schema: %v", err)
		}
		repo = pg
	}

	// Initialize layers
	var notifier service.Notifier = service.NopNotifier{}
	if cfg.NotificationsEnabled() {
		notifier = email.NewSender(cfg, logger)
	} else {
		logger.Info("SMTP_HOST not set, borrower notifications disabled")
	}
	svc := service.NewService(repo, logger, cfg, notifier, utils.NewReceiptSigner(cfg.HMACSecret))
	cbrClient := cbr.NewCBRClient(cfg, logger)
	h := handler.NewHandler(svc, cbrClient, logger)

	// Setup router
	r := mux.NewRouter()
	h.Routes(r, middleware.AuthMiddleware(cfg))

	// Daily jobs
	scheduler := jobs.NewScheduler(cfg.Location, logger, time.Hour)
	if err := scheduler.Register(cfg.ReconcileCron, "reconciliation", svc.RunDailyReconciliation); err != nil {
		logger.Fatalf("Failed to schedule reconciliation: %v", err)
	}
	if err := scheduler.Register(cfg.ReminderCron, "payment-reminders", svc.SendDailyReminders); err != nil {
		logger.Fatalf("Failed to schedule reminders: %v", err)
	}
	scheduler.Start()

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
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	scheduler.Stop(shutdownCtx)
}
