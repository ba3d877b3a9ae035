package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/kwabena-osei/vaultcore/internal/config"
	"github.com/kwabena-osei/vaultcore/internal/fees"
	"github.com/kwabena-osei/vaultcore/internal/handler"
	"github.com/kwabena-osei/vaultcore/internal/logging"
	"github.com/kwabena-osei/vaultcore/internal/middleware"
	"github.com/kwabena-osei/vaultcore/internal/reference"
	"github.com/kwabena-osei/vaultcore/internal/repository"
	"github.com/kwabena-osei/vaultcore/internal/service/notify"
	"github.com/kwabena-osei/vaultcore/internal/service/transfer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("vaultcore-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	transferRepo := repository.NewTransferRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	otpRepo := repository.NewOtpRepository(db)
	complianceRepo := repository.NewComplianceRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	directory := repository.NewCachedDirectory(repository.NewBeneficiaryRepository(db), 5*time.Minute)

	feeSchedule := fees.NewSchedule(cfg.LocalFeePct, cfg.InternationalFeePct)
	transferSvc := transfer.NewService(
		transferRepo, accountRepo, customerRepo, otpRepo, complianceRepo,
		outboxRepo, directory, reference.NewGenerator(), feeSchedule, db, cfg,
	)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	sweeper := transfer.NewSweeper(transferSvc, slog.Default(), time.Duration(cfg.SweepIntervalS)*time.Second)
	go sweeper.Start(workerCtx)

	dispatcher := notify.NewDispatcher(
		outboxRepo,
		notify.NewWebhookSender(cfg.WebhookURL),
		slog.Default(),
		time.Duration(cfg.DispatchIntervalS)*time.Second,
	)
	go dispatcher.Start(workerCtx)

	transferHandler := handler.NewTransferHandler(transferSvc)
	accountHandler := handler.NewAccountHandler(accountRepo)
	healthHandler := handler.NewHealthHandler(db)

	authn := middleware.Auth(cfg.JWTSecret)
	idem := middleware.Idempotency(idempotencyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/v1/transfers", authn(idem(http.HandlerFunc(transferHandler.Create))))
	mux.Handle("GET /api/v1/transfers", authn(http.HandlerFunc(transferHandler.List)))
	mux.Handle("GET /api/v1/transfers/{txRef}", authn(http.HandlerFunc(transferHandler.Get)))
	mux.Handle("POST /api/v1/transfers/{txRef}/advance", authn(http.HandlerFunc(transferHandler.Advance)))
	mux.Handle("POST /api/v1/transfers/{txRef}/otp/resend", authn(http.HandlerFunc(transferHandler.ResendOTP)))
	mux.Handle("POST /api/v1/transfers/{txRef}/cancel", authn(http.HandlerFunc(transferHandler.Cancel)))
	mux.Handle("GET /api/v1/accounts", authn(http.HandlerFunc(accountHandler.List)))

	root := middleware.Recovery(middleware.Tracing(middleware.Logging(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
