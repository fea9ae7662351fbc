package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/service"
)

func createNSFReversalHandler(svc *service.ReversalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments/{paymentID}/reversals/nsf")
		defer span.End()

		var req domain.CreateReversalRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.PaymentTransactionID = chi.URLParam(r, "paymentID")

		txn, err := svc.CreateNSFReversal(ctx, OrgIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

func createChargebackReversalHandler(svc *service.ReversalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments/{paymentID}/reversals/chargeback")
		defer span.End()

		var req domain.CreateReversalRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.PaymentTransactionID = chi.URLParam(r, "paymentID")

		txn, err := svc.CreateChargebackReversal(ctx, OrgIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

type resolveChargebackRequest struct {
	Resolution domain.ChargebackResolution `json:"resolution"`
}

func resolveChargebackHandler(svc *service.ReversalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments/{paymentID}/reversals/chargeback/resolution")
		defer span.End()

		var req resolveChargebackRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err := svc.ResolveChargeback(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "paymentID"), req.Resolution)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	}
}

func getReversalHandler(svc *service.ReversalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/payments/{paymentID}/reversal")
		defer span.End()

		record, err := svc.GetReversal(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "paymentID"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}
