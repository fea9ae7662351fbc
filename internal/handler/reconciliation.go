package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/service"
)

func startReconciliationHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliations")
		defer span.End()

		var req domain.StartReconciliationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		recon, err := svc.Start(ctx, OrgIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, recon)
	}
}

func getReconciliationHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliations/{reconciliationID}")
		defer span.End()

		recon, err := svc.Get(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "reconciliationID"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, recon)
	}
}

func clearTransactionsHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return toggleClearedHandler(svc, logger, true)
}

func unclearTransactionsHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return toggleClearedHandler(svc, logger, false)
}

func toggleClearedHandler(svc *service.ReconciliationService, logger *zap.Logger, cleared bool) http.HandlerFunc {
	name := "POST /v1/reconciliations/{reconciliationID}/clear"
	if !cleared {
		name = "POST /v1/reconciliations/{reconciliationID}/unclear"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()

		var req domain.ToggleClearedRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.TransactionIDs) == 0 {
			writeError(w, http.StatusBadRequest, "transaction_ids is required")
			return
		}

		orgID := OrgIDFromContext(ctx)
		reconID := chi.URLParam(r, "reconciliationID")

		var (
			updated int64
			err     error
		)
		if cleared {
			updated, err = svc.ClearTransactions(ctx, orgID, reconID, req.TransactionIDs)
		} else {
			updated, err = svc.UnclearTransactions(ctx, orgID, reconID, req.TransactionIDs)
		}
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"lines_updated": updated})
	}
}

func finalizeReconciliationHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliations/{reconciliationID}/finalize")
		defer span.End()

		var req domain.FinalizeReconciliationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err := svc.Finalize(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "reconciliationID"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
	}
}

func varianceReportHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliations/{reconciliationID}/variance")
		defer span.End()

		report, err := svc.VarianceReport(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "reconciliationID"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func staleReconciliationsHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliations/stale")
		defer span.End()

		olderThanDays := 30
		if raw := r.URL.Query().Get("older_than_days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "older_than_days must be a positive integer")
				return
			}
			olderThanDays = parsed
		}

		stale, err := svc.StaleReconciliations(ctx, OrgIDFromContext(ctx), time.Duration(olderThanDays)*24*time.Hour)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reconciliations": stale})
	}
}
