package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/service"
)

var tracer = otel.Tracer("handler")

// Services bundles the core services the router exposes.
type Services struct {
	Ledger         *service.LedgerService
	Receivable     *service.ReceivableService
	Reversal       *service.ReversalService
	Reconciliation *service.ReconciliationService
	Scheduler      *service.SchedulerService
	Batch          *service.BatchRunner
}

// Config carries the router's auth material and readiness probe.
type Config struct {
	JWTSecret          []byte
	InternalSecretHash []byte
	Ready              func(context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware. Org
// scoping comes from the token, cron triggers sit behind the internal
// shared secret.
func NewRouter(svcs Services, cfg Config, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(cfg.Ready, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 (org-scoped, token-authenticated) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret, logger))

		// Ledger
		r.Post("/transactions", postTransactionHandler(svcs.Ledger, logger))
		r.Get("/transactions/{transactionID}", getTransactionHandler(svcs.Ledger, logger))

		// Receivables
		r.Post("/charges", createChargeHandler(svcs.Ledger, logger))
		r.Post("/payments/allocations", allocatePaymentHandler(svcs.Receivable, logger))

		// Reversals
		r.Post("/payments/{paymentID}/reversals/nsf", createNSFReversalHandler(svcs.Reversal, logger))
		r.Post("/payments/{paymentID}/reversals/chargeback", createChargebackReversalHandler(svcs.Reversal, logger))
		r.Post("/payments/{paymentID}/reversals/chargeback/resolution", resolveChargebackHandler(svcs.Reversal, logger))
		r.Get("/payments/{paymentID}/reversal", getReversalHandler(svcs.Reversal, logger))

		// Reconciliations
		r.Post("/reconciliations", startReconciliationHandler(svcs.Reconciliation, logger))
		r.Get("/reconciliations/stale", staleReconciliationsHandler(svcs.Reconciliation, logger))
		r.Get("/reconciliations/{reconciliationID}", getReconciliationHandler(svcs.Reconciliation, logger))
		r.Post("/reconciliations/{reconciliationID}/clear", clearTransactionsHandler(svcs.Reconciliation, logger))
		r.Post("/reconciliations/{reconciliationID}/unclear", unclearTransactionsHandler(svcs.Reconciliation, logger))
		r.Post("/reconciliations/{reconciliationID}/finalize", finalizeReconciliationHandler(svcs.Reconciliation, logger))
		r.Get("/reconciliations/{reconciliationID}/variance", varianceReportHandler(svcs.Reconciliation, logger))

		// Recurring schedules
		r.Post("/schedules", createScheduleHandler(svcs.Scheduler, logger))
		r.Get("/schedules/{scheduleID}", getScheduleHandler(svcs.Scheduler, logger))
		r.Put("/schedules/{scheduleID}/status", setScheduleStatusHandler(svcs.Scheduler, logger))
		r.Get("/billing/windows", billingWindowsHandler(logger))
	})

	// --- Internal triggers (cron, migrations) ---
	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalSecretHash, logger))

		r.Post("/scheduler/run", fireSchedulesHandler(svcs.Scheduler, logger))
		r.Post("/batch/nightly", nightlyRunHandler(svcs.Batch, logger))
		r.Post("/backfills/{name}", runBackfillHandler(svcs.Batch, logger))
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler(ready func(context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				logger.Warn("readiness probe failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
