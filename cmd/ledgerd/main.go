package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rentfolio/ledger-core/internal/config"
	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/handler"
	"github.com/rentfolio/ledger-core/internal/infra/audit"
	"github.com/rentfolio/ledger-core/internal/infra/cache"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/infra/postgres"
	"github.com/rentfolio/ledger-core/internal/infra/resilience"
	"github.com/rentfolio/ledger-core/internal/port"
	"github.com/rentfolio/ledger-core/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("scheduler_workers", cfg.SchedulerWorkers),
		zap.Duration("org_settings_ttl", cfg.OrgSettingsTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("audit_webhook_enabled", cfg.AuditWebhookURL != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "ledger-core")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Database ---
	db, err := postgres.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	store := postgres.NewStore(db, logger)

	// --- Audit trail ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	}
	var auditTrail port.AuditTrail = audit.NopSink{}
	if cfg.AuditWebhookURL != "" {
		sink := audit.NewWebhookSink(
			&http.Client{Timeout: cfg.AuditHTTPTimeout},
			cfg.AuditWebhookURL,
			cfg.AuditWebhookSecret,
			resilienceCfg,
			logger,
			metrics,
		)
		defer sink.Close()
		auditTrail = sink
	} else {
		logger.Warn("audit webhook not configured, audit events are discarded")
	}

	// --- Cache ---
	settingsCache := cache.New[*domain.OrgSettings](cfg.OrgSettingsTTL)

	// --- Services ---
	ledgerSvc := service.NewLedgerService(store, auditTrail, metrics, logger)
	receivableSvc := service.NewReceivableService(store, auditTrail, metrics, logger)
	reversalSvc := service.NewReversalService(store, auditTrail, metrics, logger)
	reconciliationSvc := service.NewReconciliationService(store, auditTrail, metrics, logger)
	schedulerSvc := service.NewSchedulerService(store, ledgerSvc, settingsCache, auditTrail, metrics, logger, cfg.SchedulerWorkers)
	batchRunner := service.NewBatchRunner(store, schedulerSvc, settingsCache, metrics, logger)

	// --- Router ---
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to access database pool", zap.Error(err))
	}
	router := handler.NewRouter(handler.Services{
		Ledger:         ledgerSvc,
		Receivable:     receivableSvc,
		Reversal:       reversalSvc,
		Reconciliation: reconciliationSvc,
		Scheduler:      schedulerSvc,
		Batch:          batchRunner,
	}, handler.Config{
		JWTSecret:          []byte(cfg.JWTSecret),
		InternalSecretHash: []byte(cfg.InternalSecretHash),
		Ready:              sqlDB.PingContext,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
